package message

// KindFilter restricts polling to a single kind.
// The zero value matches every kind, so an empty kind stays a legitimate kind.
type KindFilter struct {
	kind string
	set  bool
}

// AnyKind returns a filter that matches every kind.
func AnyKind() KindFilter {
	return KindFilter{}
}

// OfKind returns a filter that matches only kind.
func OfKind(kind string) KindFilter {
	return KindFilter{kind: kind, set: true}
}

// Kind returns the filtered kind and whether the filter is set.
func (f KindFilter) Kind() (string, bool) {
	return f.kind, f.set
}

// Matches reports whether a message of the given kind passes the filter.
func (f KindFilter) Matches(kind string) bool {
	return !f.set || f.kind == kind
}

func (f KindFilter) String() string {
	if !f.set {
		return "*"
	}

	return f.kind
}
