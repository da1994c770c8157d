package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/strata"
)

var _ strata.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f strata.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f strata.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f strata.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f strata.Fields) { emit(z.L.Error(), msg, f) }

func emit(e *zerolog.Event, msg string, f strata.Fields) {
	for k, v := range f {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
