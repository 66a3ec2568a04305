package txn

import (
	"errors"
	"fmt"

	"ahbverify/internal/ahb"
)

// Beat is one data-bus-width slice of a transfer with the control it was
// issued under.
type Beat struct {
	Index   int
	Address uint64
	Dir     Direction
	Size    uint64
	Kind    BurstKind
	Length  int
	Prot    uint8
	Data    uint64
	Resp    ahb.Resp
}

// Decompose splits a transfer into its beats in issue order. The transfer
// response travels on beat 0.
func Decompose(t Transfer) []Beat {
	beats := make([]Beat, t.Length)
	for i := range beats {
		beats[i] = Beat{
			Index:   i,
			Address: BeatAddress(t.Address, t.Size, t.Kind, t.Length, i),
			Dir:     t.Dir,
			Size:    t.Size,
			Kind:    t.Kind,
			Length:  t.Length,
			Prot:    t.Prot,
		}
		if i < len(t.Data) {
			beats[i].Data = t.Data[i]
		}
	}
	if len(beats) > 0 {
		beats[0].Resp = t.Resp
	}
	return beats
}

var ErrBeatSequence = errors.New("beats do not form a transfer")

// Recompose rebuilds the transfer from its beats. It is the inverse of
// Decompose. The transfer response is the first non OKAY beat response.
func Recompose(beats []Beat) (Transfer, error) {
	if len(beats) == 0 {
		return Transfer{}, fmt.Errorf("%w: no beats", ErrBeatSequence)
	}
	first := beats[0]
	t := Transfer{
		Address: first.Address,
		Dir:     first.Dir,
		Size:    first.Size,
		Kind:    first.Kind,
		Length:  len(beats),
		Data:    make([]uint64, len(beats)),
		Prot:    first.Prot,
	}
	for i, b := range beats {
		if b.Index != i {
			return Transfer{}, fmt.Errorf("%w: beat %d has index %d", ErrBeatSequence, i, b.Index)
		}
		if b.Dir != t.Dir || b.Size != t.Size || b.Kind != t.Kind || b.Prot != t.Prot {
			return Transfer{}, fmt.Errorf("%w: beat %d control differs from beat 0", ErrBeatSequence, i)
		}
		if want := BeatAddress(t.Address, t.Size, t.Kind, t.Length, i); b.Address != want {
			return Transfer{}, fmt.Errorf("%w: beat %d address 0x%x, want 0x%x", ErrBeatSequence, i, b.Address, want)
		}
		t.Data[i] = b.Data
		if t.Resp == ahb.RespOkay {
			t.Resp = b.Resp
		}
	}
	return t, nil
}
