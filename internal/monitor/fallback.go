package monitor

import (
	"context"
	"errors"

	"dayzmon/pkg/logx"
)

// FallbackSource queries Primary and, when that fails, Secondary.
// The returned status names the source that answered.
type FallbackSource struct {
	Primary   Source
	Secondary Source
	Log       logx.Logger
}

func (f *FallbackSource) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *FallbackSource) Query(ctx context.Context) (RawStatus, error) {
	raw, err := f.Primary.Query(ctx)
	if err == nil {
		if raw.Source == "" {
			raw.Source = f.Primary.Name()
		}
		return raw, nil
	}
	if ctx.Err() != nil {
		return RawStatus{}, err
	}
	f.Log.Debug("primary source failed, trying fallback",
		logx.String("primary", f.Primary.Name()),
		logx.String("fallback", f.Secondary.Name()),
		logx.Err(err),
	)
	raw, ferr := f.Secondary.Query(ctx)
	if ferr != nil {
		return RawStatus{}, errors.Join(err, ferr)
	}
	if raw.Source == "" {
		raw.Source = f.Secondary.Name()
	}
	return raw, nil
}
