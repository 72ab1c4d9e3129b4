package com

import "testing"

func TestMap(t *testing.T) {
	m := NewMap[string, int]()
	if !m.IsEmpty() {
		t.Error("fresh map is not empty")
	}
	m.Put("a", 1)
	m.Put("b", 2)
	if m.Len() != 2 || !m.Has("a") {
		t.Errorf("unexpected contents, len = %d", m.Len())
	}
	if v, err := m.Find("b"); err != nil || v != 2 {
		t.Errorf("Find(b) = %v, %v", v, err)
	}
	if _, err := m.Find("zzz"); err != ErrNotFound {
		t.Errorf("Find(zzz) = %v, want ErrNotFound", err)
	}
	if _, err := m.Find(""); err != ErrNotFound {
		t.Errorf("Find of a zero key = %v, want ErrNotFound", err)
	}
	m.RemoveByKey("a")
	if m.Has("a") {
		t.Error("removed key still present")
	}
}

func TestMapFindBy(t *testing.T) {
	m := NewMap[string, int]()
	m.Put("a", 1)
	m.Put("b", 2)
	if v, err := m.FindBy(func(c int) bool { return c > 1 }); err != nil || v != 2 {
		t.Errorf("FindBy() = %v, %v", v, err)
	}
	if _, err := m.FindBy(func(c int) bool { return c > 9 }); err != ErrNotFound {
		t.Errorf("FindBy() = %v, want ErrNotFound", err)
	}
}

func TestUidOrdering(t *testing.T) {
	a, b := NewUid(), NewUid()
	if a.String() >= b.String() {
		t.Errorf("ids are not monotonic: %v >= %v", a, b)
	}
	if NilUid.String() >= a.String() {
		t.Error("nil id should sort first")
	}
}

func TestUidFrom(t *testing.T) {
	a := NewUid()
	back, err := UidFrom(a.String())
	if err != nil || back != a {
		t.Errorf("UidFrom(%v) = %v, %v", a, back, err)
	}
	if _, err = UidFrom("not-an-id"); err == nil {
		t.Error("broken id parsed")
	}
}
