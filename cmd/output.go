package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
)

var (
	errUploadFailed      = errors.New("upload failed, please try again")
	errRecognitionFailed = errors.New("recognition failed, please try again")
)

func renderStatus(w io.Writer, s analysis.Status) {
	kind := color.YellowString(string(s.Kind))
	if s.Terminal {
		kind = color.GreenString(string(s.Kind))
	}
	fmt.Fprintf(w, "[%d] %s\n", s.Round, kind)
}

func renderText(w io.Writer, text string) {
	if text == "" {
		fmt.Fprintln(w, color.YellowString("No text recognised yet."))
		return
	}
	fmt.Fprintf(w, "Recognised text: %s\n", text)
}

func renderResponse(w io.Writer, resp analysis.StatusResponse) {
	fmt.Fprintf(w, "ID:         %s\n", resp.ID)
	fmt.Fprintf(w, "Status:     %s\n", colorKind(resp))
	if resp.OCRStatus != "" {
		fmt.Fprintf(w, "OCR:        %s\n", resp.OCRStatus)
	}
	if resp.LLMStatus != "" {
		fmt.Fprintf(w, "LLM:        %s\n", resp.LLMStatus)
	}
	if resp.OCRText != "" {
		fmt.Fprintf(w, "Text:       %s\n", resp.OCRText)
	}
	if resp.ConfirmedText != "" {
		fmt.Fprintf(w, "Confirmed:  %s\n", resp.ConfirmedText)
	}
	if resp.Preference != "" {
		fmt.Fprintf(w, "Preference: %s\n", resp.Preference)
	}
	if resp.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:      %s\n", color.RedString(resp.ErrorMessage))
	}
}

func colorKind(resp analysis.StatusResponse) string {
	kind := string(resp.Kind())
	switch {
	case resp.Terminal():
		return color.GreenString(kind)
	case kind == string(analysis.StatusOCRFailed) || kind == string(analysis.StatusFailed):
		return color.RedString(kind)
	default:
		return color.YellowString(kind)
	}
}

// requestFailure turns a backend error into a short message for the terminal.
func requestFailure(id string, err error) error {
	if analysis.IsNotFound(err) {
		return fmt.Errorf("analysis %s not found", id)
	}
	var apiErr *analysis.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	return errors.New("request failed, please try again")
}
