package service

import "errors"

// ErrFormIDRequired rejects snapshot requests without a form id.
var ErrFormIDRequired = errors.New("formId is required")

// ErrFormNotFound reports that the requested form does not exist.
var ErrFormNotFound = errors.New("form not found")
