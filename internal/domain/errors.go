package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a query can end with.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindConnectivity      ErrorKind = "connectivity"
	KindInvalidInstrument ErrorKind = "invalid_instrument"
	KindResponse          ErrorKind = "response"
	KindUnknown           ErrorKind = "unknown"
)

var (
	ErrPageLimit = errors.New("limite de páginas excedido")
	ErrNoData    = errors.New("nenhum dado carregado")
)

// ValidationError is a bad SearchCriteria, reported before any request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConnectivityError is a transport failure or a non-2xx answer.
type ConnectivityError struct {
	URL        string
	Page       int
	StatusCode int
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("página %d: status code %d para URL: %s", e.Page, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("página %d: erro de conexão com %s: %v", e.Page, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// InvalidInstrumentError means the service answered with the zero sentinel.
type InvalidInstrumentError struct {
	Category Category
	Code     string
}

func (e *InvalidInstrumentError) Error() string {
	return fmt.Sprintf("código de papel inválido: %s (%s)", e.Code, e.Category)
}

// ResponseError is an answer that cannot be turned into a table.
type ResponseError struct {
	URL    string
	Page   int
	Reason string
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("página %d: %s: %v", e.Page, e.Reason, e.Err)
	}
	return fmt.Sprintf("página %d: %s", e.Page, e.Reason)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// KindOf maps any error to its place in the taxonomy.
func KindOf(err error) ErrorKind {
	var (
		validation   *ValidationError
		connectivity *ConnectivityError
		invalid      *InvalidInstrumentError
		response     *ResponseError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &invalid):
		return KindInvalidInstrument
	case errors.As(err, &connectivity):
		return KindConnectivity
	case errors.As(err, &response):
		return KindResponse
	default:
		return KindUnknown
	}
}

// UserMessage is the text shown to the user when a query fails.
func UserMessage(err error) string {
	switch KindOf(err) {
	case "":
		return ""
	case KindValidation:
		var v *ValidationError
		errors.As(err, &v)
		return v.Message
	case KindConnectivity:
		return "Não foi possível conectar ao servidor. Tente novamente mais tarde"
	case KindInvalidInstrument:
		return "Código do papel inválido"
	case KindResponse:
		return fmt.Sprintf("Resposta inesperada do servidor: %v", err)
	default:
		return fmt.Sprintf("Erro: %v", err)
	}
}
