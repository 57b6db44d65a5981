package middleware

import (
	"net/http"
	"strings"
)

// Decision is what an interceptor wants done with the request.
type Decision int

const (
	// Proceed hands the request to the next interceptor.
	Proceed Decision = iota
	// Bypass skips the remaining interceptors and calls the handler.
	Bypass
	// Reject ends the chain with Outcome.Status.
	Reject
)

// Outcome is an interceptor's verdict. Request, when set, replaces the request
// seen by later interceptors and the handler.
type Outcome struct {
	Decision Decision
	Request  *http.Request
	Status   int
	Err      error
}

// Interceptor inspects one request. It may set response headers but must not
// write the body; rejections are written by the pipeline.
type Interceptor func(w http.ResponseWriter, r *http.Request) Outcome

func Continue(r *http.Request) Outcome {
	return Outcome{Decision: Proceed, Request: r}
}

func Skip(r *http.Request) Outcome {
	return Outcome{Decision: Bypass, Request: r}
}

func Deny(status int, err error) Outcome {
	return Outcome{Decision: Reject, Status: status, Err: err}
}

// Pipeline runs interceptors in order before the wrapped handler.
func Pipeline(interceptors ...Interceptor) func(http.Handler) http.Handler {
	chain := append([]Interceptor(nil), interceptors...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, intercept := range chain {
				out := intercept(w, r)
				if out.Request != nil {
					r = out.Request
				}
				switch out.Decision {
				case Reject:
					WriteStatus(w, out.Status)
					return
				case Bypass:
					next.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteStatus writes status with its lower-case status text as the body.
// Credential failures therefore always read "unauthorized".
func WriteStatus(w http.ResponseWriter, status int) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}
