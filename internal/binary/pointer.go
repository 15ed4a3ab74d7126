package binary

// pointerPreamble is the 2×u32 preamble (magic, bias) in front of the
// header, which the game's load address does not include.
const pointerPreamble = 8

// Translate converts an in-file pointer, stored as a load address of the
// game engine, into an absolute file offset. A zero pointer stays zero and
// terminates a chain. Pointers below the bias wrap to an offset past any
// real file, which callers reject.
func Translate(bias, pointer uint32) uint64 {
	if pointer == 0 {
		return 0
	}
	return uint64(pointer) + pointerPreamble - uint64(bias)
}
