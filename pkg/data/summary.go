package data

import "fmt"

// KindCounts tallies variables by kind.
type KindCounts struct {
	Discrete   int `json:"discrete"`
	Continuous int `json:"continuous"`
	String     int `json:"string"`
}

// Summary describes a table the way the Data Info widget reports it.
type Summary struct {
	Rows      int        `json:"rows"`
	Variables int        `json:"variables"`
	Features  KindCounts `json:"features"`
	Metas     KindCounts `json:"metas"`
	Target    string     `json:"target"`
	Location  string     `json:"location"`
}

// Summarize computes a Summary. A nil table yields the "No data" summary.
func Summarize(t *Table) Summary {
	if t == nil {
		return Summary{Target: "None"}
	}
	s := Summary{
		Rows:      t.Len(),
		Variables: t.domain.Len(),
		Features:  countKinds(t.domain.Attributes),
		Metas:     countKinds(t.domain.Metas),
		Target:    "None",
		Location:  "Data is stored in memory",
	}
	if c := t.domain.Class; c != nil {
		if c.IsContinuous() {
			s.Target = "Continuous target variable"
		} else {
			s.Target = fmt.Sprintf("Discrete class with %d values", len(c.Values))
		}
	}
	if t.location != LocationMemory {
		s.Location = t.location
	}
	return s
}

func countKinds(vars []Variable) KindCounts {
	var k KindCounts
	for _, v := range vars {
		switch v.Kind {
		case KindDiscrete:
			k.Discrete++
		case KindContinuous:
			k.Continuous++
		case KindString:
			k.String++
		}
	}
	return k
}
