package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/doctrine/pkg/compliance/ledger"
)

// EncodeReport renders a report as indented JSON with a trailing newline.
func EncodeReport(r *ledger.Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// PublishReport stores the encoded report and returns its reference.
func PublishReport(ctx context.Context, store Store, r *ledger.Report) (string, error) {
	data, err := EncodeReport(r)
	if err != nil {
		return "", err
	}
	ref, err := store.Store(ctx, data)
	if err != nil {
		return "", fmt.Errorf("publish report %s: %w", r.RunID, err)
	}
	return ref, nil
}

// LoadReport reads a report previously stored with PublishReport.
func LoadReport(ctx context.Context, store Store, ref string) (*ledger.Report, error) {
	data, err := store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	var r ledger.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", ref, err)
	}
	return &r, nil
}

// WriteReport writes the encoded report to a stream sink.
func WriteReport(w io.Writer, r *ledger.Report) error {
	data, err := EncodeReport(r)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
