package adapter

import "errors"

var (
	ErrNotInitialized           = errors.New("database not initialized")
	ErrAlreadyInitialized       = errors.New("database already initialized")
	ErrFailedToOpen             = errors.New("failed to open encrypted database")
	ErrTransactionActive        = errors.New("transaction already active")
	ErrNoTransaction            = errors.New("no active transaction")
	ErrInvalidBackupFormat      = errors.New("invalid backup format")
	ErrUnsupportedBackupVersion = errors.New("unsupported backup version")
	ErrFailedToImport           = errors.New("failed to import database from json")
	ErrBinaryImportUnsupported  = errors.New("binary database import not supported")
)
