// Command gpibmon is a host-side companion to the firmware: it opens
// the adapter's CDC-ACM serial port, replays "+"/"++" command lines from
// a file (or stdin) at a bounded rate, and logs whatever comes back.
// Grounded on seedhammer-seedhammer's use of github.com/tarm/serial to
// talk to a physical serial peripheral from a plain host binary.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

func main() {
	port := flag.String("port", "/dev/ttyACM0", "serial device the adapter enumerates as")
	baud := flag.Int("baud", 460800, "baud rate (§6: 460800 8N1)")
	linesPerSecond := flag.Float64("rate", 50, "max command lines replayed per second")
	replayFile := flag.String("replay", "", "file of commands to replay; defaults to stdin")
	flag.Parse()

	conn, err := serial.OpenPort(&serial.Config{
		Name:        *port,
		Baud:        *baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		log.Fatalf("gpibmon: open %s: %v", *port, err)
	}
	defer conn.Close()

	go logReplies(conn)

	in := os.Stdin
	if *replayFile != "" {
		f, err := os.Open(*replayFile)
		if err != nil {
			log.Fatalf("gpibmon: open replay file: %v", err)
		}
		defer f.Close()
		in = f
	}

	limiter := rate.NewLimiter(rate.Limit(*linesPerSecond), 1)
	replay(context.Background(), conn, in, limiter)
}

func replay(ctx context.Context, conn *serial.Port, in *os.File, limiter *rate.Limiter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := limiter.Wait(ctx); err != nil {
			log.Fatalf("gpibmon: rate limiter: %v", err)
		}

		line := scanner.Text()
		if _, err := conn.Write([]byte(line + "\r")); err != nil {
			log.Fatalf("gpibmon: write: %v", err)
		}
		fmt.Printf("> %s\n", line)
	}
}

func logReplies(conn *serial.Port) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			fmt.Printf("< %q\n", buf[:n])
		}
	}
}
