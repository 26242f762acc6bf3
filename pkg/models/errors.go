package models

import "errors"

// Common errors for code-analysis entities.
var (
	// Project errors
	ErrProjectNotFound  = errors.New("project not found")
	ErrDuplicateProject = errors.New("project already exists")

	// File errors
	ErrFileNotFound  = errors.New("file not found")
	ErrDuplicateFile = errors.New("file already exists")

	// Attribute errors
	ErrAttributeNotFound = errors.New("attribute not found")
)
