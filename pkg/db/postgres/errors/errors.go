package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kdb "github.com/molsys/chemflow/pkg/db"
)

// requested data is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}
func (m Missing) Unwrap() error {
	return kdb.ErrMissing
}

// requested data is found too much.
type TooMuch struct {
	Table    string
	Identity string
	Expected int
}

var _ error = TooMuch{}

func (t TooMuch) Error() string {
	return fmt.Sprintf(
		"%s is found in %s more than %d times",
		t.Identity, t.Table, t.Expected,
	)
}

func (t TooMuch) Unwrap() error {
	return kdb.ErrTooMuch
}

// requested rows are still referenced.
type Protected struct {
	Table    string
	Identity string
}

var _ error = Protected{}

func (p Protected) Error() string {
	return fmt.Sprintf("%s in %s is referenced by other rows", p.Identity, p.Table)
}

func (p Protected) Unwrap() error {
	return kdb.ErrProtected
}

// TranslateProtected converts a foreign key violation into Protected.
// Other errors pass through untouched.
func TranslateProtected(err error, table string, identity string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return Protected{Table: table, Identity: identity}
	}
	return err
}
