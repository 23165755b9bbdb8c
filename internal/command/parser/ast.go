package parser

// Statement is one parsed shell command.
type Statement interface {
	stmtNode()
}

type CreateTableStmt struct {
	TableName string
	Attrs     []string
}

func (*CreateTableStmt) stmtNode() {}

type DropTableStmt struct {
	TableName string
}

func (*DropTableStmt) stmtNode() {}

type InsertStmt struct {
	TableName string
	Values    map[string]string
}

func (*InsertStmt) stmtNode() {}

// ReadStmt selects records by logical index; no Lines means all.
type ReadStmt struct {
	TableName string
	Lines     []int
}

func (*ReadStmt) stmtNode() {}

type UpdateStmt struct {
	TableName string
	ID        int
	Values    map[string]string
}

func (*UpdateStmt) stmtNode() {}

type DeleteKind int

const (
	DeleteAll DeleteKind = iota
	DeleteByIndex
	DeleteByAttributes
)

func (k DeleteKind) String() string {
	switch k {
	case DeleteAll:
		return "all"
	case DeleteByIndex:
		return "index"
	case DeleteByAttributes:
		return "attributes"
	default:
		return "unknown"
	}
}

// DeleteStmt:
//   - DeleteAll: every record
//   - DeleteByIndex: record ID, or only NullAttrs of it when set
//   - DeleteByAttributes: records equal to all of Where
type DeleteStmt struct {
	TableName string
	Kind      DeleteKind
	ID        int
	NullAttrs []string
	Where     map[string]string
}

func (*DeleteStmt) stmtNode() {}

// JoinStmt joins Tables left to right; Attrs maps each table to its join
// attribute.
type JoinStmt struct {
	Tables []string
	Attrs  map[string]string
}

func (*JoinStmt) stmtNode() {}

type ListTablesStmt struct{}

func (*ListTablesStmt) stmtNode() {}

type DescribeStmt struct {
	TableName string
}

func (*DescribeStmt) stmtNode() {}

type ChecksumStmt struct {
	TableName string
}

func (*ChecksumStmt) stmtNode() {}

type HelpStmt struct{}

func (*HelpStmt) stmtNode() {}
