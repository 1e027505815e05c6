// Package config defines the typed option schema of a reduction job and the
// loaders that fill it from the supported sources: flat text maps, native Go
// values and HCL files.
//
// Every source is first turned into cty values and then decoded by a single
// schema-driven pass (Decode). Each option is converted to its declared type;
// malformed values, unknown names and missing mandatory options are reported
// as *Error values before any reduction starts. Caller-supplied text is never
// evaluated as an expression.
package config
