// Package prompt wraps promptui for the interactive admin menu.
package prompt

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the operator cancels a prompt (Ctrl+C/Ctrl+D).
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the operator cancelled.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Confirm asks a yes/no question. "n" is a plain false, not an error.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, hint), IsConfirm: true}

	result, err := p.Run()
	switch {
	case err == nil:
		return result == "y" || result == "Y" || result == "yes", nil
	case errors.Is(err, promptui.ErrAbort):
		if result == "" {
			return defaultYes, nil
		}
		return false, nil
	default:
		return false, wrapError(err)
	}
}

// ConfirmDanger requires the operator to type word before proceeding.
func ConfirmDanger(label, word string) (bool, error) {
	p := promptui.Prompt{
		Label: fmt.Sprintf("%s (type '%s' to confirm)", label, word),
		Validate: func(input string) error {
			if input != word {
				return fmt.Errorf("type '%s' to confirm", word)
			}
			return nil
		},
	}
	result, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, wrapError(err)
	}
	return result == word, nil
}

// InputInt asks for an integer of at least min.
func InputInt(label string, def, min int) (int, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(def),
		Validate: func(input string) error {
			n, err := strconv.Atoi(input)
			if err != nil {
				return errors.New("must be a whole number")
			}
			if n < min {
				return fmt.Errorf("must be at least %d", min)
			}
			return nil
		},
	}
	result, err := p.Run()
	if err != nil {
		return 0, wrapError(err)
	}
	n, _ := strconv.Atoi(result)
	return n, nil
}
