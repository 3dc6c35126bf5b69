package model

import "strconv"

// Function codes of the personality model. The concrete weights are
// configuration; only the shape (eight functions, base+creative pairs)
// is fixed here.
const (
	FuncNe = "Ne"
	FuncNi = "Ni"
	FuncSe = "Se"
	FuncSi = "Si"
	FuncTe = "Te"
	FuncTi = "Ti"
	FuncFe = "Fe"
	FuncFi = "Fi"
)

// Functions lists all function codes in canonical order.
func Functions() []string {
	return []string{FuncNe, FuncNi, FuncSe, FuncSi, FuncTe, FuncTi, FuncFe, FuncFi}
}

// TypeSpec defines one candidate type by its function stack head.
type TypeSpec struct {
	Code     string
	Base     string
	Creative string
}

// typeTable pairs each perceiving function with each judging function of the
// opposite attitude; sixteen candidate types in total. Code is base+creative.
var typeTable = []TypeSpec{
	{"NeTi", FuncNe, FuncTi}, {"NeFi", FuncNe, FuncFi},
	{"NiTe", FuncNi, FuncTe}, {"NiFe", FuncNi, FuncFe},
	{"SeTi", FuncSe, FuncTi}, {"SeFi", FuncSe, FuncFi},
	{"SiTe", FuncSi, FuncTe}, {"SiFe", FuncSi, FuncFe},
	{"TiNe", FuncTi, FuncNe}, {"TiSe", FuncTi, FuncSe},
	{"TeNi", FuncTe, FuncNi}, {"TeSi", FuncTe, FuncSi},
	{"FiNe", FuncFi, FuncNe}, {"FiSe", FuncFi, FuncSe},
	{"FeNi", FuncFe, FuncNi}, {"FeSi", FuncFe, FuncSi},
}

// Types returns the candidate type table. Callers must not mutate it.
func Types() []TypeSpec {
	return typeTable
}

// TypeByCode looks up a type spec; ok is false for unknown codes.
func TypeByCode(code string) (TypeSpec, bool) {
	for _, t := range typeTable {
		if t.Code == code {
			return t, true
		}
	}
	return TypeSpec{}, false
}

// CompareResultsVersions orders two results_version stamps. Segments are
// compared numerically when both parse as integers, otherwise as strings;
// a missing segment sorts before any present one. Returns -1, 0 or 1.
//
// Plain byte-wise comparison would misorder "3.10" against "3.9", so the
// ordering guarantee for concurrent finalizations uses this instead.
func CompareResultsVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		switch {
		case i >= len(as):
			return -1
		case i >= len(bs):
			return 1
		}
		ai, aNum := atoi(as[i])
		bi, bNum := atoi(bs[i])
		switch {
		case aNum && bNum:
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
		default:
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
	}
	return 0
}

func splitVersion(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			out = append(out, v[start:i])
			start = i + 1
		}
	}
	return append(out, v[start:])
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
