//go:build js && wasm

// webclient.go is a WASM web client for the Mandelbrot explorer.
// It displays the surfaces the server publishes and turns mouse and keyboard
// input into viewer commands: wheel zooms, dragging pans, arrows nudge.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"syscall/js"

	"github.com/marben/mandel_explorer/viewer"
)

// main is the entry point for the WASM web client.
func main() {
	logScreenf("Starting WASM web client...")

	// Step 1: Determine server address for WebSocket connection
	loc := js.Global().Get("window").Get("location")
	host := loc.Get("host").String()
	proto := "ws"
	if loc.Get("protocol").String() == "https:" {
		proto = "wss"
	}
	websocketUrl := proto + "://" + host + "/ws"

	// Step 2: Connect to server via WebSocket
	logScreenf("Connecting to Mandelbrot server at %s...", websocketUrl)
	websocket := js.Global().Get("WebSocket").New(websocketUrl)
	websocketRWC := NewWSReadWriteCloser(websocket)

	// Step 3: Commands are queued by the input handlers and sent in order
	commands := make(chan viewer.Command, 64)
	go sendLoop(websocketRWC, commands)

	width, height := displaySize()
	initCanvas(width, height, "#3a3a6e")
	send(commands, viewer.Command{Op: viewer.OpResize, Width: width, Height: height})

	// Step 4: Wire input
	bindInput(commands)

	// Step 5: Display what the server sends
	if err := receiveLoop(websocketRWC); err != nil {
		logFatalf("receiveLoop: %v", err)
	}
	logScreenf("server went away")

	// Step 6: Block main goroutine to keep WASM running
	select {}
}

// send queues a command without blocking the JS event loop.
func send(commands chan<- viewer.Command, c viewer.Command) {
	select {
	case commands <- c:
	default:
		logScreenf("dropped %s command, connection too slow", c.Op)
	}
}

func sendLoop(rwc *WSReadWriteCloser, commands <-chan viewer.Command) {
	enc := json.NewEncoder(rwc)
	for c := range commands {
		if err := enc.Encode(c); err != nil {
			logScreenf("send %s: %v", c.Op, err)
			return
		}
	}
}

// receiveLoop draws surfaces and updates the HUD until the connection closes.
func receiveLoop(rwc *WSReadWriteCloser) error {
	dec := json.NewDecoder(rwc)
	for {
		var msg viewer.Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode: %w", err)
		}

		switch {
		case msg.Surface != nil:
			img, err := decodeSurface(msg.PNG)
			if err != nil {
				logScreenf("%v", err)
				continue
			}
			took := displayImage(img)
			hudSet("generation", fmt.Sprintf("%d / step %d / pixel group %v", msg.Generation, msg.Step, msg.PixelGroup))
			hudSet("drawTime", took.String())
		case msg.Status != nil:
			hudSet("status", msg.Text)
			hudSet("workersRunning", fmt.Sprint(msg.Workers))
		}
	}
}

// displaySize is the size of the canvas element on the page.
func displaySize() (int, int) {
	canvas := js.Global().Get("document").Call("getElementById", "myCanvas")
	w := canvas.Get("clientWidth").Int()
	h := canvas.Get("clientHeight").Int()
	if w == 0 || h == 0 {
		win := js.Global().Get("window")
		w, h = win.Get("innerWidth").Int(), win.Get("innerHeight").Int()
	}
	return w, h
}

// bindInput translates canvas and keyboard events to commands.
func bindInput(commands chan<- viewer.Command) {
	doc := js.Global().Get("document")
	canvas := doc.Call("getElementById", "myCanvas")

	fraction := func(ev js.Value) (float64, float64) {
		return ev.Get("offsetX").Float() / canvas.Get("clientWidth").Float(),
			ev.Get("offsetY").Float() / canvas.Get("clientHeight").Float()
	}

	canvas.Call("addEventListener", "wheel", js.FuncOf(func(_ js.Value, args []js.Value) any {
		ev := args[0]
		ev.Call("preventDefault")
		fx, fy := fraction(ev)
		send(commands, viewer.Command{Op: viewer.OpZoom, FX: fx, FY: fy, In: ev.Get("deltaY").Float() < 0})
		return nil
	}), map[string]any{"passive": false})

	var dragging bool
	var fromX, fromY float64
	canvas.Call("addEventListener", "mousedown", js.FuncOf(func(_ js.Value, args []js.Value) any {
		dragging = true
		fromX, fromY = fraction(args[0])
		return nil
	}))
	canvas.Call("addEventListener", "mouseup", js.FuncOf(func(_ js.Value, args []js.Value) any {
		if !dragging {
			return nil
		}
		dragging = false
		x, y := fraction(args[0])
		if x == fromX && y == fromY {
			return nil
		}
		// the view moves against the drag
		send(commands, viewer.Command{Op: viewer.OpPan, FX: fromX - x, FY: fromY - y})
		return nil
	}))

	doc.Call("addEventListener", "keydown", js.FuncOf(func(_ js.Value, args []js.Value) any {
		ev := args[0]
		fine := ev.Get("shiftKey").Bool()
		var c viewer.Command
		switch ev.Get("key").String() {
		case "ArrowLeft":
			c = viewer.Command{Op: viewer.OpNudge, DX: -1, Fine: fine}
		case "ArrowRight":
			c = viewer.Command{Op: viewer.OpNudge, DX: 1, Fine: fine}
		case "ArrowUp":
			c = viewer.Command{Op: viewer.OpNudge, DY: 1, Fine: fine}
		case "ArrowDown":
			c = viewer.Command{Op: viewer.OpNudge, DY: -1, Fine: fine}
		case "+", "=":
			c = viewer.Command{Op: viewer.OpZoom, FX: 0.5, FY: 0.5, In: true}
		case "-":
			c = viewer.Command{Op: viewer.OpZoom, FX: 0.5, FY: 0.5}
		case "PageUp":
			c = viewer.Command{Op: viewer.OpMaxIt, Delta: 1}
		case "PageDown":
			c = viewer.Command{Op: viewer.OpMaxIt, Delta: -1}
		case ".":
			c = viewer.Command{Op: viewer.OpColors, Delta: 1}
		case ",":
			c = viewer.Command{Op: viewer.OpColors, Delta: -1}
		case "]":
			c = viewer.Command{Op: viewer.OpShift, Delta: 1}
		case "[":
			c = viewer.Command{Op: viewer.OpShift, Delta: -1}
		case "Home":
			c = viewer.Command{Op: viewer.OpReset}
		case "r":
			c = viewer.Command{Op: viewer.OpRecompute}
		default:
			return nil
		}
		ev.Call("preventDefault")
		send(commands, c)
		return nil
	}))

	landmarks := doc.Call("getElementById", "landmark")
	if !landmarks.IsNull() {
		landmarks.Call("addEventListener", "change", js.FuncOf(func(this js.Value, _ []js.Value) any {
			if name := this.Get("value").String(); name != "" {
				send(commands, viewer.Command{Op: viewer.OpLandmark, Name: name})
			}
			return nil
		}))
	}

	js.Global().Get("window").Call("addEventListener", "resize", js.FuncOf(func(js.Value, []js.Value) any {
		w, h := displaySize()
		send(commands, viewer.Command{Op: viewer.OpResize, Width: w, Height: h})
		return nil
	}))
}

// logScreenf appends a formatted message to the log element in the DOM,
func logScreenf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)

	doc := js.Global().Get("document")
	logElem := doc.Call("getElementById", "log")
	logElem.Set("textContent", logElem.Get("textContent").String()+msg+"\n")
}

// logFatalf logs a fatal error to the log window and terminates the program.
func logFatalf(format string, a ...any) {
	logScreenf("FATAL: "+format, a...)
	log.Fatalf(format, a...)
}

// hudSet sets the text of the HUD element id.
func hudSet(id, text string) {
	el := js.Global().Get("document").Call("getElementById", id)
	if !el.IsNull() {
		el.Set("textContent", text)
	}
}
