package output

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrCancelled is returned when the user interrupts a prompt.
var ErrCancelled = errors.New("cancelled")

// Confirm asks a yes/no question, defaulting to no.
func Confirm(prompt string) (bool, error) {
	confirmed := false
	err := survey.AskOne(&survey.Confirm{Message: prompt, Default: false}, &confirmed)
	if errors.Is(err, terminal.InterruptErr) {
		return false, ErrCancelled
	}
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// InputPassword reads a secret without echo. validate may be nil.
func InputPassword(prompt string, validate func(string) error) (string, error) {
	var value string
	var opts []survey.AskOpt
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}
	err := survey.AskOne(&survey.Password{Message: prompt}, &value, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return "", ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return value, nil
}
