package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest hashes everything that determines future ticks apart from private
// strategy state: tick, id counter, growth timer, grid and agent energies.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	put(w.tick)
	put(w.reg.nextID)
	put(uint64(w.growth.rate))
	put(w.growth.elapsed)
	put(w.growth.interval)
	gd := w.grid.Digest()
	h.Write(gd[:])
	for _, id := range w.reg.keys() {
		a := w.reg.get(id)
		put(id)
		put(uint64(int64(a.Energy)))
		h.Write([]byte(a.Strategy.Name()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
