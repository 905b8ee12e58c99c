// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreChunkInsertInvalid    Code = "store.chunk.insert.invalid_input"
	CodeStoreChunkNotFound         Code = "store.chunk.get.not_found"
	CodeStoreDocumentUpsertInvalid Code = "store.document.upsert.invalid_input"
	CodeStoreDocumentNotFound      Code = "store.document.get.not_found"
	CodeStoreDocumentStatusInvalid Code = "store.document.status.invalid_input"
	CodeStoreFilterInvalid         Code = "store.filter.build.invalid_input"
	CodeStoreSearchLogNotFound     Code = "store.analytics.get.not_found"
	CodeStoreDatabaseFailure       Code = "store.database.failure"
	CodeStoreBackendUnsupported    Code = "store.backend.unsupported"
	CodeStoreInvalidInput          Code = "store.invalid_input"

	CodeVectorDimensionMismatch Code = "vector.dimension.mismatch"
	CodeVectorNormInvalid       Code = "vector.norm.invalid"
	CodeVectorIDInvalid         Code = "vector.id.invalid_input"
	CodeVectorIndexEmpty        Code = "vector.index.empty"
	CodeVectorIndexIOFailure    Code = "vector.index.io_failure"
	CodeVectorIndexCorrupt      Code = "vector.index.corrupt"
	CodeVectorIndexClosed       Code = "vector.index.closed"
	CodeVectorQueryInvalid      Code = "vector.query.invalid_input"

	CodeRetrievalRequestInvalid Code = "retrieval.request.invalid_input"
	CodeRetrievalRebuildFailure Code = "retrieval.rebuild.failure"
	CodeRetrievalIngestInvalid  Code = "retrieval.ingest.invalid_input"

	CodeEmbeddingConfigInvalid   Code = "embedding.config.invalid_input"
	CodeEmbeddingUpstreamFailure Code = "embedding.upstream.failure"
	CodeEmbeddingResponseInvalid Code = "embedding.response.invalid"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput   Code = "secret.input.invalid_input"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldChunkID(value string) Attr {
	return Field("chunk_id", value)
}

func FieldDocumentID(value string) Attr {
	return Field("document_id", value)
}

func FieldVectorID(value int64) Attr {
	return Field("vector_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsDimensionMismatch(err error) bool {
	return HasCode(err, CodeVectorDimensionMismatch)
}

func IsCorruptIndex(err error) bool {
	return HasCode(err, CodeVectorIndexCorrupt)
}

func IsEmptyIndex(err error) bool {
	return HasCode(err, CodeVectorIndexEmpty)
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
