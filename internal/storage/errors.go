package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ConnectivityError marks a store error as fatal for the whole run:
// losing the backing store mid-run is not a per-record or per-file
// condition.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return fmt.Sprintf("store connectivity: %v", e.Err) }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// ConstraintError marks a constraint violation. Given the declared
// conflict clauses this should never happen; when it does it is a
// programming-contract violation and must not be swallowed.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string { return fmt.Sprintf("store constraint: %v", e.Err) }
func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is (or wraps) a connectivity
// failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsConstraintViolation reports whether err is (or wraps) a constraint
// violation.
func IsConstraintViolation(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// Classify wraps driver errors into the run-level taxonomy. Backends call
// it on every write/query error so the orchestrator can decide fatal vs
// contained without importing driver packages.
//
// Unrecognized errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivity(err) || IsConstraintViolation(err) {
		return err
	}

	// Postgres: SQLSTATE class 23 is integrity constraint violation;
	// class 08 is connection exception; 57P01..57P03 are shutdown/crash.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return &ConstraintError{Err: err}
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return &ConnectivityError{Err: err}
		}
		return err
	}

	// SQL Server: 2627/2601 are unique key violations, 547 is a
	// constraint conflict.
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 2601, 2627, 547:
			return &ConstraintError{Err: err}
		}
		return err
	}

	// SQLite: the modernc driver surfaces result codes; CONSTRAINT
	// covers the whole 19/x family.
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return &ConstraintError{Err: err}
		}
		return err
	}

	if isTransportError(err) {
		return &ConnectivityError{Err: err}
	}
	return err
}

// isTransportError recognizes network-level failures that any driver can
// surface while dialing or mid-statement.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.ETIMEDOUT, syscall.EHOSTUNREACH, syscall.ENETUNREACH,
			syscall.ENETDOWN, syscall.EPIPE:
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Driver-specific messages with no typed error to match on.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no route to host",
		"network is unreachable",
		"failed to connect",
		"server closed the connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
