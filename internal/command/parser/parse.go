package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
)

var (
	ErrEmpty  = errors.New("parser: empty command")
	ErrSyntax = fmt.Errorf("%w: syntax", dberr.ErrInvalid)
)

// idKey is the pair key that names a record index.
const idKey = "id"

// Parse parses one shell command into a Statement.
func Parse(line string) (Statement, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, ErrEmpty
	}

	cmd, err := cmdParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	switch {
	case cmd.Create != nil:
		return lowerCreate(cmd.Create)
	case cmd.Drop != nil:
		return &DropTableStmt{TableName: cmd.Drop.Table}, nil
	case cmd.Insert != nil:
		return lowerInsert(cmd.Insert)
	case cmd.Read != nil:
		return lowerRead(cmd.Read)
	case cmd.Update != nil:
		return lowerUpdate(cmd.Update)
	case cmd.Delete != nil:
		return lowerDelete(cmd.Delete)
	case cmd.Join != nil:
		return lowerJoin(cmd.Join)
	case cmd.Describe != nil:
		return &DescribeStmt{TableName: cmd.Describe.Table}, nil
	case cmd.Checksum != nil:
		return &ChecksumStmt{TableName: cmd.Checksum.Table}, nil
	case cmd.Tables:
		return &ListTablesStmt{}, nil
	case cmd.Help:
		return &HelpStmt{}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrSyntax, s)
}

func lowerCreate(c *createCmd) (Statement, error) {
	for _, a := range c.Attrs {
		if err := record.ValidateName(a); err != nil {
			return nil, err
		}
	}
	return &CreateTableStmt{TableName: c.Table, Attrs: c.Attrs}, nil
}

func lowerInsert(c *pairsCmd) (Statement, error) {
	if len(c.Pairs) == 0 {
		return nil, fmt.Errorf("%w: insert needs at least one attr:value", ErrSyntax)
	}
	values, err := pairMap(c.Pairs)
	if err != nil {
		return nil, err
	}
	return &InsertStmt{TableName: c.Table, Values: values}, nil
}

func lowerRead(c *pairsCmd) (Statement, error) {
	stmt := &ReadStmt{TableName: c.Table}
	for _, p := range c.Pairs {
		k, v := splitPair(p)
		if k != idKey {
			return nil, fmt.Errorf("%w: read accepts only id:<n>, got %q", ErrSyntax, p)
		}
		id, err := parseID(v)
		if err != nil {
			return nil, err
		}
		stmt.Lines = append(stmt.Lines, id)
	}
	return stmt, nil
}

func lowerUpdate(c *pairsCmd) (Statement, error) {
	if len(c.Pairs) < 2 {
		return nil, fmt.Errorf("%w: update needs id:<n> and at least one attr:value", ErrSyntax)
	}
	k, v := splitPair(c.Pairs[0])
	if k != idKey {
		return nil, fmt.Errorf("%w: update must start with id:<n>, got %q", ErrSyntax, c.Pairs[0])
	}
	id, err := parseID(v)
	if err != nil {
		return nil, err
	}
	values, err := pairMap(c.Pairs[1:])
	if err != nil {
		return nil, err
	}
	return &UpdateStmt{TableName: c.Table, ID: id, Values: values}, nil
}

func lowerDelete(c *deleteCmd) (Statement, error) {
	stmt := &DeleteStmt{TableName: c.Table}

	if len(c.Pairs) == 0 {
		if len(c.Words) > 0 {
			return nil, fmt.Errorf("%w: delete %s: unexpected %q", ErrSyntax, c.Table, c.Words[0])
		}
		stmt.Kind = DeleteAll
		return stmt, nil
	}

	if k, v := splitPair(c.Pairs[0]); k == idKey && len(c.Pairs) == 1 {
		id, err := parseID(v)
		if err != nil {
			return nil, err
		}
		stmt.Kind = DeleteByIndex
		stmt.ID = id
		stmt.NullAttrs = c.Words
		return stmt, nil
	}

	if len(c.Words) > 0 {
		return nil, fmt.Errorf("%w: delete %s: attribute names only follow id:<n>", ErrSyntax, c.Table)
	}
	where, err := pairMap(c.Pairs)
	if err != nil {
		return nil, err
	}
	stmt.Kind = DeleteByAttributes
	stmt.Where = where
	return stmt, nil
}

func lowerJoin(c *joinCmd) (Statement, error) {
	stmt := &JoinStmt{Attrs: make(map[string]string, len(c.Refs))}
	for _, ref := range c.Refs {
		table, attr, ok := strings.Cut(ref, ".")
		if !ok || table == "" || attr == "" {
			return nil, fmt.Errorf("%w: join expects <table>.<attr>, got %q", ErrSyntax, ref)
		}
		if _, dup := stmt.Attrs[table]; dup {
			return nil, fmt.Errorf("%w: table %q appears twice in join", ErrSyntax, table)
		}
		stmt.Tables = append(stmt.Tables, table)
		stmt.Attrs[table] = attr
	}
	return stmt, nil
}

// splitPair cuts "k:v" at the first colon; v may contain more colons.
func splitPair(p string) (string, string) {
	k, v, _ := strings.Cut(p, ":")
	return k, v
}

func pairMap(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v := splitPair(p)
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: attribute %q given twice", ErrSyntax, k)
		}
		out[k] = v
	}
	return out, nil
}

// parseID accepts a non-negative decimal record index.
func parseID(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: record id %q is not a non-negative integer", ErrSyntax, s)
	}
	// cast reads a leading 0 as octal
	if t := strings.TrimLeft(s, "0"); t != "" {
		s = t
	} else {
		s = "0"
	}
	id, err := cast.ToIntE(s)
	if err != nil {
		return 0, fmt.Errorf("%w: record id %q: %v", ErrSyntax, s, err)
	}
	return id, nil
}
