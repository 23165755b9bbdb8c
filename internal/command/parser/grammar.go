package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// command is the raw parse tree; Parse lowers it into a Statement.
type command struct {
	Create   *createCmd `  @@`
	Drop     *nameCmd   `| "drop" @@`
	Insert   *pairsCmd  `| "insert" @@`
	Read     *pairsCmd  `| "read" @@`
	Update   *pairsCmd  `| "update" @@`
	Delete   *deleteCmd `| "delete" @@`
	Join     *joinCmd   `| @@`
	Describe *nameCmd   `| "describe" @@`
	Checksum *nameCmd   `| "checksum" @@`
	Tables   bool       `| @"tables"`
	Help     bool       `| @"help"`
}

type createCmd struct {
	Table string   `"create" @Word`
	Attrs []string `@Word+`
}

type nameCmd struct {
	Table string `@Word`
}

type pairsCmd struct {
	Table string   `@Word`
	Pairs []string `@Pair*`
}

type deleteCmd struct {
	Table string   `@Word`
	Pairs []string `@Pair*`
	Words []string `@Word*`
}

type joinCmd struct {
	Refs []string `"join" @Word @Word+`
}

// Pair must come before Word: "a:b" is also a run of non-space.
var cmdLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Pair", Pattern: `[^\s:]+:\S*`},
	{Name: "Word", Pattern: `\S+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var cmdParser = participle.MustBuild[command](
	participle.Lexer(cmdLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Word"),
)
