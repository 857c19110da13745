package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/frahmantamala/attendance-management/internal"
)

var operationName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect renders the three statements of the call protocol. All three run on
// the same connection because the out-parameter is connection scoped.
type Dialect interface {
	Name() string
	// ResetStatement clears any value left on a pooled connection by an
	// earlier command.
	ResetStatement() string
	// CallStatement invokes op with nargs business arguments and the
	// out-parameter as the final slot.
	CallStatement(op string, nargs int) string
	// PlaceholderArgs are extra bound arguments for the out slot, if any.
	PlaceholderArgs() []any
	FetchStatement() string
}

// MySQL uses a session user variable as the out-parameter.
type MySQL struct {
	Variable string
}

func NewMySQL() MySQL {
	return MySQL{Variable: "@p_result"}
}

func (d MySQL) Name() string { return internal.DriverMySQL }

func (d MySQL) ResetStatement() string {
	return fmt.Sprintf("SET %s = NULL", d.Variable)
}

func (d MySQL) CallStatement(op string, nargs int) string {
	slots := make([]string, 0, nargs+1)
	for i := 0; i < nargs; i++ {
		slots = append(slots, "?")
	}
	slots = append(slots, d.Variable)
	return fmt.Sprintf("CALL %s(%s)", op, strings.Join(slots, ", "))
}

func (d MySQL) PlaceholderArgs() []any { return nil }

func (d MySQL) FetchStatement() string {
	return fmt.Sprintf("SELECT %s", d.Variable)
}

// Postgres procedures receive the name of a session-level setting as their
// last argument and store the JSON result with set_config(name, value, false).
type Postgres struct {
	Setting string
}

func NewPostgres() Postgres {
	return Postgres{Setting: "attendance.command_result"}
}

func (d Postgres) Name() string { return internal.DriverPostgres }

func (d Postgres) ResetStatement() string {
	return fmt.Sprintf("SELECT set_config('%s', '', false)", d.Setting)
}

func (d Postgres) CallStatement(op string, nargs int) string {
	slots := make([]string, 0, nargs+1)
	for i := 1; i <= nargs+1; i++ {
		slots = append(slots, fmt.Sprintf("$%d", i))
	}
	return fmt.Sprintf("CALL %s(%s)", op, strings.Join(slots, ", "))
}

func (d Postgres) PlaceholderArgs() []any { return []any{d.Setting} }

func (d Postgres) FetchStatement() string {
	return fmt.Sprintf("SELECT current_setting('%s', true)", d.Setting)
}

// DialectFor picks the dialect matching a configured driver.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case internal.DriverMySQL:
		return NewMySQL(), nil
	case internal.DriverPostgres, "":
		return NewPostgres(), nil
	default:
		return nil, fmt.Errorf("no command dialect for driver %q", driver)
	}
}

func validOperation(op string) bool {
	return operationName.MatchString(op)
}
