package cqltype

import "testing"

func TestCQLRendering(t *testing.T) {
	cases := []struct {
		t    Type
		want string
	}{
		{Prim(Text), "text"},
		{List(Prim(Int)), "list<int>"},
		{Set(Prim(UUID)), "set<uuid>"},
		{Map(Prim(Text), Prim(Int)), "map<text, int>"},
		{Frozen(List(Prim(Text))), "frozen<list<text>>"},
		{Tuple(Prim(Int), Prim(Text)), "tuple<int, text>"},
		{UDT("address"), "address"},
	}
	for _, c := range cases {
		if got := c.t.CQL(); got != c.want {
			t.Errorf("CQL() = %q, want %q", got, c.want)
		}
	}
}

func TestIsCollection(t *testing.T) {
	if !List(Prim(Int)).IsCollection() {
		t.Error("list should be a collection")
	}
	if Prim(Int).IsCollection() {
		t.Error("int should not be a collection")
	}
}

func TestIsAlterableTo(t *testing.T) {
	if !IsAlterableTo(Prim(Ascii), Prim(Text)) {
		t.Error("ascii -> text should be alterable")
	}
	if !IsAlterableTo(Prim(Int), Prim(Int)) {
		t.Error("identical types should be alterable")
	}
	if IsAlterableTo(Prim(Text), Prim(Int)) {
		t.Error("text -> int should not be alterable")
	}
	if IsAlterableTo(List(Prim(Int)), List(Prim(Text))) {
		t.Error("list element type change should not be alterable")
	}
}

func TestIsCounter(t *testing.T) {
	if !Prim(Counter).IsCounter() {
		t.Error("counter primitive should report IsCounter")
	}
	if Prim(Int).IsCounter() {
		t.Error("int should not report IsCounter")
	}
}
