package prompt

import "github.com/manifoldco/promptui"

// Option is one entry of a selection list.
type Option struct {
	Label       string
	Description string
}

func selectTemplates(withDetails bool) *promptui.SelectTemplates {
	t := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "* {{ .Label | green }}",
	}
	if withDetails {
		t.Details = `
{{ .Description | faint }}`
	}
	return t
}

// Select shows options and returns the index the operator picked.
func Select(label string, options []Option) (int, error) {
	withDetails := false
	for _, o := range options {
		if o.Description != "" {
			withDetails = true
			break
		}
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: selectTemplates(withDetails),
		Size:      10,
	}
	i, _, err := p.Run()
	if err != nil {
		return -1, wrapError(err)
	}
	return i, nil
}
