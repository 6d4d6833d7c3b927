package storage

import (
	"context"
	"io"
	"os"

	"github.com/ncw/swift/v2"
	"github.com/pkg/errors"
)

type swiftstore struct {
	conn      *swift.Connection
	container string
}

// NewSwift returns a new OpenStack Swift backend storing every key in container.
// The connection is authenticated and the container created when needed.
func NewSwift(ctx context.Context, conn *swift.Connection, container string) (Backend, error) {
	if !conn.Authenticated() {
		if err := conn.Authenticate(ctx); err != nil {
			return nil, errors.Wrap(err, "could not authenticate")
		}
	}

	if err := conn.ContainerCreate(ctx, container, nil); err != nil {
		return nil, errors.Wrap(err, "could not create container")
	}

	return &swiftstore{
		conn:      conn,
		container: container,
	}, nil
}

func (b *swiftstore) Name() string {
	return "swift"
}

func (b *swiftstore) Exist(ctx context.Context, key string) (bool, error) {
	_, _, err := b.conn.Object(ctx, b.container, key)
	if err == nil {
		return true, nil
	}
	if err == swift.ObjectNotFound {
		return false, nil
	}
	return false, wrap("stat", key, err)
}

func (b *swiftstore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.conn.ObjectNamesAll(ctx, b.container, &swift.ObjectsOpts{
		Prefix: prefix,
	})
	if err != nil {
		return nil, wrap("list", prefix, err)
	}
	return keys, nil
}

func (b *swiftstore) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, _, err := b.conn.ObjectOpen(ctx, b.container, key, false, nil)
	if err != nil {
		if err == swift.ObjectNotFound {
			return nil, notfound(key)
		}
		return nil, wrap("open", key, err)
	}
	return rc, nil
}

// Promote uploads filename with a single PUT, Swift only exposes an object once fully received.
func (b *swiftstore) Promote(ctx context.Context, filename, key string) error {
	f, err := os.Open(filename)
	if err != nil {
		return wrap("promote", key, err)
	}
	defer f.Close()

	_, err = b.conn.ObjectPut(ctx, b.container, key, f, true, "", "application/octet-stream", nil)
	if err != nil {
		return wrap("promote", key, err)
	}

	if err = os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return wrap("promote", key, err)
	}
	return nil
}

func (b *swiftstore) Remove(ctx context.Context, key string) error {
	err := b.conn.ObjectDelete(ctx, b.container, key)
	if err != nil && err != swift.ObjectNotFound {
		return wrap("delete", key, err)
	}
	return nil
}
