package sql_test

import (
	"context"
	"testing"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/dialect/sql"
)

func BenchmarkSelectStatement_Simple(b *testing.B) {
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext(anansi.Fields("id", "username", "first_name"))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = cp.GenerateSelectStatement(context.Background(), s.user, c, 0)
	}
}

func BenchmarkSelectStatement_Translated(b *testing.B) {
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext(
		anansi.Where(anansi.Q("display").ContainsInsensitive("jo")),
		anansi.OrderBy("-display"),
		anansi.Limit(10),
	)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = cp.GenerateSelectStatement(context.Background(), s.user, c, 0)
	}
}

func BenchmarkSelectStatement_Complex(b *testing.B) {
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext(
		anansi.Fields("id", "first_name", "last_name"),
		anansi.Where(anansi.And(
			anansi.Q("last_name").Is("doe"),
			anansi.Or(
				anansi.Q("id").GreaterThan(18),
				anansi.Q("first_name").Is("admin"),
			),
			anansi.Q("username").IsIn("a", "b", "c"),
			anansi.Q("first_name").IsNot(nil),
		)),
		anansi.OrderBy("last_name", "first_name"),
		anansi.Limit(100),
		anansi.Start(50),
	)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = cp.GenerateSelectStatement(context.Background(), s.user, c, 0)
	}
}

func BenchmarkInsertStatement_I18n(b *testing.B) {
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext()
	base := []sql.Pair{{Column: "code", Value: "test"}}
	i18n := []sql.Pair{{Column: "title", Value: "Test"}}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		cp.InsertI18nStatement(s.content, c, base, i18n)
	}
}

func BenchmarkUpdateStatement(b *testing.B) {
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext()
	pairs := []sql.Pair{
		{Column: "first_name", Value: "John"},
		{Column: "last_name", Value: "Doe"},
		{Column: "user", Value: "jdoe"},
	}
	key := []sql.Pair{{Column: "id", Value: 1}}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		cp.UpdateStatement(s.user, c, pairs, key)
	}
}
