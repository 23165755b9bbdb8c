package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/tuannm99/shardb/internal/catalog"
	"github.com/tuannm99/shardb/internal/command/parser"
)

// Database is the part of engine.DBManager the shell drives. Tests swap in
// a fake.
type Database interface {
	CreateTable(name string, attrs []string) error
	DeleteTable(name string) error
	InsertRecord(name string, attrs map[string]string) error
	ReadTable(w io.Writer, name string, lines []int) error
	UpdateRecord(name string, id int, updates map[string]string) error
	DeleteByIndex(name string, id int, nullAttrs []string) error
	DeleteByAttributes(name string, attrs map[string]string) (int, error)
	JoinTables(ctx context.Context, w io.Writer, names []string, attrMap map[string]string) error
	ListTables() []string
	Describe(name string) (catalog.TableInfo, error)
	Checksums(name string) (map[string]string, error)
}

// Executor runs shell commands against a Database, writing results to Out.
type Executor struct {
	DB  Database
	Out io.Writer
}

func New(db Database, out io.Writer) *Executor {
	return &Executor{DB: db, Out: out}
}

// Exec parses and runs one command line. Blank lines are a no-op.
func (e *Executor) Exec(ctx context.Context, line string) error {
	stmt, err := parser.Parse(line)
	if errors.Is(err, parser.ErrEmpty) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.ExecStmt(ctx, stmt)
}

func (e *Executor) ExecStmt(ctx context.Context, stmt parser.Statement) error {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return e.execCreate(s)
	case *parser.DropTableStmt:
		return e.execDrop(s)
	case *parser.InsertStmt:
		return e.execInsert(s)
	case *parser.ReadStmt:
		return e.DB.ReadTable(e.Out, s.TableName, s.Lines)
	case *parser.UpdateStmt:
		return e.execUpdate(s)
	case *parser.DeleteStmt:
		return e.execDelete(s)
	case *parser.JoinStmt:
		return e.DB.JoinTables(ctx, e.Out, s.Tables, s.Attrs)
	case *parser.ListTablesStmt:
		for _, name := range e.DB.ListTables() {
			e.printf("%s\n", name)
		}
		return nil
	case *parser.DescribeStmt:
		return e.execDescribe(s)
	case *parser.ChecksumStmt:
		return e.execChecksum(s)
	case *parser.HelpStmt:
		e.printf("%s", HelpText())
		return nil
	default:
		return fmt.Errorf("executor: unsupported statement %T", stmt)
	}
}

func (e *Executor) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(e.Out, format, args...); err != nil {
		slog.Warn("executor: write output", "err", err)
	}
}

func (e *Executor) execCreate(s *parser.CreateTableStmt) error {
	if err := e.DB.CreateTable(s.TableName, s.Attrs); err != nil {
		return err
	}
	e.printf("table created: %s\n", s.TableName)
	return nil
}

func (e *Executor) execDrop(s *parser.DropTableStmt) error {
	if err := e.DB.DeleteTable(s.TableName); err != nil {
		return err
	}
	e.printf("table deleted: %s\n", s.TableName)
	return nil
}

func (e *Executor) execInsert(s *parser.InsertStmt) error {
	if err := e.DB.InsertRecord(s.TableName, s.Values); err != nil {
		return err
	}
	e.printf("inserted into %s\n", s.TableName)
	return nil
}

func (e *Executor) execUpdate(s *parser.UpdateStmt) error {
	if err := e.DB.UpdateRecord(s.TableName, s.ID, s.Values); err != nil {
		return err
	}
	e.printf("updated %s record %d\n", s.TableName, s.ID)
	return nil
}

func (e *Executor) execDelete(s *parser.DeleteStmt) error {
	switch s.Kind {
	case parser.DeleteByIndex:
		if err := e.DB.DeleteByIndex(s.TableName, s.ID, s.NullAttrs); err != nil {
			return err
		}
		if len(s.NullAttrs) > 0 {
			e.printf("cleared %s on %s record %d\n", strings.Join(s.NullAttrs, ","), s.TableName, s.ID)
		} else {
			e.printf("deleted %s record %d\n", s.TableName, s.ID)
		}
		return nil
	case parser.DeleteAll, parser.DeleteByAttributes:
		n, err := e.DB.DeleteByAttributes(s.TableName, s.Where)
		if err != nil {
			return err
		}
		e.printf("deleted %d record(s) from %s\n", n, s.TableName)
		return nil
	default:
		return fmt.Errorf("executor: unsupported delete kind %s", s.Kind)
	}
}

func (e *Executor) execDescribe(s *parser.DescribeStmt) error {
	info, err := e.DB.Describe(s.TableName)
	if err != nil {
		return err
	}
	e.printf("table:   %s\n", info.Name)
	e.printf("columns: %s\n", strings.Join(info.Columns, ", "))
	e.printf("shards:  %d\n", info.Shards)
	e.printf("records: %d\n", info.Records)
	e.printf("size:    %s\n", info.Size())
	return nil
}

func (e *Executor) execChecksum(s *parser.ChecksumStmt) error {
	sums, err := e.DB.Checksums(s.TableName)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(sums))
	for f := range sums {
		files = append(files, f)
	}
	slices.Sort(files)
	for _, f := range files {
		e.printf("%s  %s\n", sums[f], f)
	}
	return nil
}
