package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ShoutrrrSender fans a message out to every configured service URL
// (telegram://, discord://, generic://...).
type ShoutrrrSender struct {
	router *router.ServiceRouter
}

// NewShoutrrrSender builds a sender for urls.
func NewShoutrrrSender(urls []string, out io.Writer) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.New("notify: no service urls configured")
	}
	r, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("notify: create sender: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	r.SetLogger(log.New(out, "", 0))
	return &ShoutrrrSender{router: r}, nil
}

func (s *ShoutrrrSender) Send(ctx context.Context, title, message string) error {
	params := stypes.Params{}
	params.SetTitle(title)

	done := make(chan error, 1)
	go func() {
		done <- errors.Join(s.router.Send(message, &params)...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
