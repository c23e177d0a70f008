package network

import (
	"context"
	"fmt"

	"github.com/VanDung-dev/colblob/host"
)

// RemoteBlob is a container held by a ContainerServer. Reads run on a
// goroutine and complete on the blob's loop.
type RemoteBlob struct {
	client *Client
	loop   *host.Loop
	name   string
	start  uint64
	end    uint64
	// maxRead caps the length of one ReadRange request.
	maxRead uint64
}

var _ host.Sliceable = (*RemoteBlob)(nil)

// OpenRemote stats the named container and returns it as a blob.
// Reads longer than MaxRangeLength are split into consecutive requests.
func OpenRemote(ctx context.Context, client *Client, loop *host.Loop, name string) (*RemoteBlob, error) {
	size, err := client.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	return &RemoteBlob{client: client, loop: loop, name: name, end: size, maxRead: MaxRangeLength}, nil
}

func (b *RemoteBlob) Size() uint64 { return b.end - b.start }

func (b *RemoteBlob) Loop() *host.Loop { return b.loop }

// Name returns the container name on the server.
func (b *RemoteBlob) Name() string { return b.name }

// Slice returns a view of [start, end) relative to this blob.
func (b *RemoteBlob) Slice(start, end uint64) (host.Blob, error) {
	if start > end || end > b.Size() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", host.ErrInvalidSlice, start, end, b.Size())
	}
	return &RemoteBlob{
		client:  b.client,
		loop:    b.loop,
		name:    b.name,
		start:   b.start + start,
		end:     b.start + end,
		maxRead: b.maxRead,
	}, nil
}

// readAll fetches the whole view, at most maxRead bytes per request.
func (b *RemoteBlob) readAll(ctx context.Context) ([]byte, error) {
	size := b.Size()
	if size <= b.maxRead {
		return b.client.ReadRange(ctx, b.name, b.start, size)
	}

	out := make([]byte, 0, size)
	for off := b.start; off < b.end; {
		n := b.end - off
		if n > b.maxRead {
			n = b.maxRead
		}
		part, err := b.client.ReadRange(ctx, b.name, off, n)
		if err != nil {
			return nil, err
		}
		if uint64(len(part)) != n {
			return nil, fmt.Errorf("%w: short range [%d, +%d): got %d bytes", ErrRemote, off, n, len(part))
		}
		out = append(out, part...)
		off += n
	}
	return out, nil
}

func (b *RemoteBlob) NewReader() host.BlobReader {
	return &remoteReader{client: b.client, loop: b.loop}
}

type remoteReader struct {
	client *Client
	loop   *host.Loop
	onLoad func([]byte, error)
	used   bool
}

func (r *remoteReader) OnLoad(fn func([]byte, error)) { r.onLoad = fn }

func (r *remoteReader) ReadAll(blob host.Blob) error {
	if r.used {
		return host.ErrReaderUsed
	}
	rb, ok := blob.(*RemoteBlob)
	if !ok || rb.client != r.client {
		return host.ErrForeignBlob
	}
	r.used = true

	cb := r.onLoad
	go func() {
		data, err := rb.readAll(context.Background())
		if cb == nil {
			return
		}
		_ = r.loop.Post(func() { cb(data, err) })
	}()
	return nil
}
