package main

import "fmt"

// SourceObjects lists database objects the migration does not carry over.
// They are surfaced as warnings so the operator can recreate them by hand.
type SourceObjects struct {
	Views    []string
	Routines []string
	Triggers []string
}

func (o *SourceObjects) warnings() []string {
	if o == nil {
		return nil
	}
	var out []string
	for _, v := range o.Views {
		out = append(out, fmt.Sprintf("view %s is not migrated and must be recreated manually", v))
	}
	for _, r := range o.Routines {
		out = append(out, fmt.Sprintf("routine %s is not migrated and must be recreated manually", r))
	}
	for _, t := range o.Triggers {
		out = append(out, fmt.Sprintf("trigger %s is not migrated and must be recreated manually", t))
	}
	return out
}
