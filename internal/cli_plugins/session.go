package cliplugins

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"

	"lanchat/internal/node"
	"lanchat/internal/peers"
)

const promptHelp = `commands:
  <text>        send a chat message to every known peer
  /file <path>  send a file through the relay
  /peers        list known peers
  /quit         leave`

// chatNode is the part of node.Node the prompt drives.
type chatNode interface {
	SendChat(body string) (int, error)
	SendFilePath(path string) error
	Peers() []peers.Record
	Events() <-chan node.Event
}

type lineReader interface {
	ReadLine() (string, error)
}

// scannerReader reads lines when stdin is not a terminal
type scannerReader struct {
	sc *bufio.Scanner
}

func newScannerReader(r io.Reader) *scannerReader {
	return &scannerReader{sc: bufio.NewScanner(r)}
}

func (s *scannerReader) ReadLine() (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// session связывает строки ввода с узлом и печатает входящие события
type session struct {
	node chatNode
	in   lineReader
	out  io.Writer
}

// Run работает до /quit, конца ввода или отмены ctx
func (s *session) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			line, err := s.in.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.node.Events():
			s.printEvent(e)
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lines:
			if !s.handle(line) {
				return nil
			}
		}
	}
}

// handle выполняет одну строку, false означает выход
func (s *session) handle(line string) bool {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
	case line == "/quit":
		return false
	case line == "/help":
		fmt.Fprintln(s.out, promptHelp)
	case line == "/peers":
		s.printPeers()
	case line == "/file" || strings.HasPrefix(line, "/file "):
		// пути с пробелами берутся в кавычки
		args, err := shellquote.Split(strings.TrimPrefix(line, "/file"))
		if err != nil || len(args) != 1 {
			fmt.Fprintln(s.out, "usage: /file <path>")
			break
		}
		path := args[0]
		if err := s.node.SendFilePath(path); err != nil {
			fmt.Fprintf(s.out, "file not sent: %v\n", err)
			break
		}
		fmt.Fprintf(s.out, "file sent: %s\n", path)
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(s.out, promptHelp)
	default:
		sent, err := s.node.SendChat(line)
		if err != nil {
			fmt.Fprintf(s.out, "message not sent: %v\n", err)
			break
		}
		if sent == 0 {
			fmt.Fprintln(s.out, "no peers known yet")
		}
	}
	return true
}

func (s *session) printPeers() {
	records := s.node.Peers()
	if len(records) == 0 {
		fmt.Fprintln(s.out, "no peers known yet")
		return
	}
	for _, p := range records {
		fmt.Fprintf(s.out, "  %-15s %s\n", p.Address, p.Name)
	}
}

func (s *session) printEvent(e node.Event) {
	switch e.Kind {
	case node.EventMessage:
		fmt.Fprintf(s.out, "[%s]: %s\n", e.Username, e.Body)
	case node.EventFile:
		if e.File == nil {
			return
		}
		fmt.Fprintf(s.out, "[%s] sent %s (%s, %d bytes)", e.Username, e.File.FullName(), e.File.Type, e.File.Size)
		if e.SavedPath != "" {
			fmt.Fprintf(s.out, " saved to %s", e.SavedPath)
		}
		fmt.Fprintln(s.out)
	case node.EventPeer:
		fmt.Fprintf(s.out, "* %s is online (%s)\n", e.Peer.Name, e.Peer.Address)
	}
}
