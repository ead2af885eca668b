package api

import (
	"net/http"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

// statusFor maps a pipeline error code to the HTTP status reported to
// the caller. Anything not explicitly listed is a server-side failure.
func statusFor(code sqlerr.Code) int {
	switch code {
	case sqlerr.CodeSemicolon, sqlerr.CodeComment, sqlerr.CodeDisallowedKeyword,
		sqlerr.CodeRowLock, sqlerr.CodeSideEffectFn,
		sqlerr.CodeParseError, sqlerr.CodeMultiStatement, sqlerr.CodeNotSelect,
		sqlerr.CodeCTENotSupported, sqlerr.CodeSelectInto,
		sqlerr.CodeFromUnsupported, sqlerr.CodeSubqueryNotSupported,
		sqlerr.CodeTableMissing, sqlerr.CodeTableUnknown, sqlerr.CodeJoinUnsupported,
		sqlerr.CodeAliasUnknown, sqlerr.CodeColumnUnsupported, sqlerr.CodeWildcard,
		sqlerr.CodeParameterNotAllowed, sqlerr.CodeSensitiveColumn,
		sqlerr.CodeColumnUnknown, sqlerr.CodeColumnAmbiguous, sqlerr.CodeColumnNoSource,
		sqlerr.CodeOffsetNotAllowed, sqlerr.CodeLimitNotNumeric, sqlerr.CodeLimitInvalid,
		sqlerr.CodeDBSchemaError:
		return http.StatusBadRequest
	case sqlerr.CodeInternalRewriteLeak:
		return http.StatusInternalServerError
	case sqlerr.CodeDBOther:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
