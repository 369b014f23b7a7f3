//go:build wasip1

// Command tiktok is a reactor guest used by the wasm integration tests.
package main

import (
	"time"

	"github.com/woxQAQ/jsbridge/api/guest"
)

func main() {}

//go:wasmexport start
func start() {
	b := guest.Default()

	s, err := b.InvokeString("return {} + {}", guest.Str("hi!"), guest.Number(2.5))
	if err != nil {
		panic(err)
	}
	b.Exec("effects.push({})", guest.Str(s))

	step := func(word string, d time.Duration) guest.Task {
		return guest.Await(func() *guest.Future { return b.Sleep(d) }, func(guest.Value) {
			b.Exec("effects.push({})", guest.Str(word))
		})
	}
	b.BlockOn(guest.Seq(step("tik", 0), step("tok", 10*time.Millisecond)))
}
