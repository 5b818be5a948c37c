package reply

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/kvhost/eeipc/ipc/command"
	"github.com/kvhost/eeipc/ipc/dependency"
	"github.com/kvhost/eeipc/ipc/ipcerr"
	"github.com/kvhost/eeipc/ipc/transport"
	"github.com/kvhost/eeipc/ipc/wire"
)

// pair returns a client Stream backed by one end of a loopback TCP
// connection and the raw server-side net.Conn for the test to script
// EE behavior on.
func pair(t *testing.T) (*transport.Stream, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := transport.Dial(port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	return client, server
}

type fakeSource struct {
	tables map[uint32]dependency.Table
}

func (f fakeSource) NextDependency(id uint32) (dependency.Table, bool) {
	t, ok := f.tables[id]
	return t, ok
}

func TestAwaitStatusSuccess(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	server.Write([]byte{byte(command.StatusSuccess)})

	r := New(client, fakeSource{})
	if err := r.AwaitStatus(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestAwaitStatusRunsDependencyCallbackLoop(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	go func() {
		var depID [4]byte
		binary.BigEndian.PutUint32(depID[:], 1)
		server.Write([]byte{byte(command.StatusRetrieveDependency)})
		server.Write(depID[:])

		buf := make([]byte, 1)
		io.ReadFull(server, buf)
		if buf[0] != byte(command.StatusDependencyFound) {
			t.Errorf("expected DependencyFound, got %v", buf[0])
		}
		lenBuf := make([]byte, 4)
		io.ReadFull(server, lenBuf)
		n := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, n)
		io.ReadFull(server, body)

		binary.BigEndian.PutUint32(depID[:], 2)
		server.Write([]byte{byte(command.StatusRetrieveDependency)})
		server.Write(depID[:])
		io.ReadFull(server, buf)
		if buf[0] != byte(command.StatusDependencyNotFound) {
			t.Errorf("expected DependencyNotFound, got %v", buf[0])
		}

		server.Write([]byte{byte(command.StatusSuccess)})
	}()

	src := fakeSource{tables: map[uint32]dependency.Table{
		1: dependency.Table(make([]byte, 128)),
	}}
	r := New(client, src)
	if err := r.AwaitStatus(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestAwaitStatusDecodesGenericError(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	server.Write([]byte{byte(command.StatusGenericError)})
	server.Write([]byte{0, 0, 0, 0}) // zero-length exception payload

	r := New(client, fakeSource{})
	err := r.AwaitStatus()
	genErr, ok := err.(*ipcerr.GenericEEError)
	if !ok {
		t.Fatalf("expected *ipcerr.GenericEEError, got %T (%v)", err, err)
	}
	if genErr.Status != byte(command.StatusGenericError) {
		t.Fatalf("expected status %d, got %d", command.StatusGenericError, genErr.Status)
	}
}

func TestAwaitStatusDecodesTypedException(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	payload := []byte("serialized exception bytes")
	server.Write([]byte{byte(command.StatusGenericError)})
	lenBytes := wire.PutU32(nil, uint32(len(payload)))
	server.Write(lenBytes)
	server.Write(payload)

	r := New(client, fakeSource{})
	err := r.AwaitStatus()
	eeErr, ok := err.(*ipcerr.EEException)
	if !ok {
		t.Fatalf("expected *ipcerr.EEException, got %T (%v)", err, err)
	}
	if string(eeErr.Payload) != string(payload) {
		t.Fatalf("expected payload %q, got %q", payload, eeErr.Payload)
	}
}

func TestAwaitStatusDecodesCrash(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	var msg []byte
	msg = wire.PutString(msg, "boom")
	msg = wire.PutString(msg, "ee.cc")
	msg = wire.PutU32(msg, 123)
	msg = wire.PutU32(msg, 2)
	msg = wire.PutString(msg, "frame1")
	msg = wire.PutString(msg, "frame2")

	server.Write([]byte{byte(command.StatusCrash)})
	server.Write(wire.PutU32(nil, uint32(len(msg))))
	server.Write(msg)

	r := New(client, fakeSource{})
	err := r.AwaitStatus()
	crashErr, ok := err.(*ipcerr.EECrashError)
	if !ok {
		t.Fatalf("expected *ipcerr.EECrashError, got %T (%v)", err, err)
	}
	if crashErr.Reason != "boom" || crashErr.File != "ee.cc" || crashErr.Line != 123 {
		t.Fatalf("unexpected crash fields: %+v", crashErr)
	}
	if len(crashErr.Traces) != 2 || crashErr.Traces[0] != "frame1" || crashErr.Traces[1] != "frame2" {
		t.Fatalf("unexpected traces: %v", crashErr.Traces)
	}
}

func TestDecodeResultTableSet(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	table := []byte("a-serialized-table")
	var body []byte
	body = append(body, 1) // dirty = true
	body = wire.PutU32(body, 1)
	body = wire.PutU32(body, 0) // dependency id, ignored
	body = wire.PutBytes(body, table)

	server.Write(wire.PutU32(nil, uint32(len(body))))
	server.Write(body)

	r := New(client, fakeSource{})
	set, err := r.DecodeResultTableSet(1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !set.Dirty {
		t.Fatalf("expected dirty=true")
	}
	if len(set.Tables) != 1 || string(set.Tables[0]) != string(table) {
		t.Fatalf("unexpected tables: %v", set.Tables)
	}
}

func TestDecodeResultTableSetRejectsBadDependencyCount(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	var body []byte
	body = append(body, 0)
	body = wire.PutU32(body, 2) // invalid: must be 1

	server.Write(wire.PutU32(nil, uint32(len(body))))
	server.Write(body)

	r := New(client, fakeSource{})
	_, err := r.DecodeResultTableSet(1)
	if _, ok := err.(*ipcerr.ProtocolViolationError); !ok {
		t.Fatalf("expected ProtocolViolationError, got %T (%v)", err, err)
	}
}

func TestDecodeDependencySet(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	table1 := []byte("dep-1-table")
	table2 := []byte("dep-2-table")
	var body []byte
	body = append(body, 0) // dirty = false
	body = wire.PutU32(body, 2)
	body = wire.PutU32(body, 5)
	body = wire.PutBytes(body, table1)
	body = wire.PutU32(body, 6)
	body = wire.PutBytes(body, table2)

	server.Write(wire.PutU32(nil, uint32(len(body))))
	server.Write(body)

	r := New(client, fakeSource{})
	set, err := r.DecodeDependencySet()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if set.Dirty {
		t.Fatalf("expected dirty=false")
	}
	if len(set.DepIDs) != 2 || set.DepIDs[0] != 5 || set.DepIDs[1] != 6 {
		t.Fatalf("unexpected dep ids: %v", set.DepIDs)
	}
	if string(set.Tables[0]) != string(table1) || string(set.Tables[1]) != string(table2) {
		t.Fatalf("unexpected tables: %v", set.Tables)
	}
}
