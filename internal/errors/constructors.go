package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

// Metadata errors

// NoSupportedPipeline signals that none of the distribution's declared
// pipeline candidates match a supported build-tool family.
func NoSupportedPipeline(distribution string) *BuildError {
	return New(CategoryMetadata, SeverityFatal, "no supported build pipeline").
		WithContext("distribution", distribution)
}

// AmbiguousPipeline signals self-contradictory metadata: a candidate declares
// markers belonging to more than one family. A metadata defect, not a build
// defect.
func AmbiguousPipeline(distribution, detail string) *BuildError {
	return New(CategoryMetadata, SeverityFatal, "ambiguous build pipeline").
		WithContext("distribution", distribution).
		WithContext("detail", detail)
}

func MetadataInvalid(field, reason string) *BuildError {
	return New(CategoryMetadata, SeverityFatal, "metadata validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Sandbox errors

func SandboxCreationFailed(operation string, cause error) *BuildError {
	return Wrap(cause, CategorySandbox, SeverityFatal, "sandbox creation failed").
		WithContext("operation", operation)
}

func SandboxCleanupWarning(path string, cause error) *BuildError {
	return Wrap(cause, CategorySandbox, SeverityWarning, "sandbox cleanup failed").
		WithContext("path", path)
}

// Packaging errors

// NoSuccessfulTarget signals a packaging request against a report in which
// no target build succeeded.
func NoSuccessfulTarget(distribution string) *BuildError {
	return New(CategoryPackaging, SeverityError, "no successful target to package").
		WithContext("distribution", distribution)
}

func ArchiveError(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryPackaging, SeverityError, "archive operation failed").
		WithContext("operation", operation)
}

// pg_config errors

func PgConfigFailed(path string, cause error) *BuildError {
	return Wrap(cause, CategoryPgConfig, SeverityFatal, "pg_config probe failed").
		WithContext("pg_config", path)
}
