package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// USBTMC is an instrument reached through the USB Test & Measurement Class
// bulk endpoints.
type USBTMC struct {
	vid, pid uint16
	timeout  time.Duration
	log      *logrus.Logger

	mu   sync.Mutex
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	tags tagger
	buf  []byte
}

// OpenUSBTMC opens the first device matching vid:pid and claims its default
// interface.
func OpenUSBTMC(vid, pid uint16, timeout time.Duration, log *logrus.Logger) (*USBTMC, error) {
	u := &USBTMC{
		vid:     vid,
		pid:     pid,
		timeout: timeout,
		log:     log,
		ctx:     gousb.NewContext(),
		buf:     make([]byte, defaultMaxTransferSize+headerSize+3),
	}

	dev, err := u.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		u.Close()
		return nil, errors.Wrapf(err, "failed to open usb device %04x:%04x", vid, pid)
	}
	if dev == nil {
		u.Close()
		return nil, errors.Errorf("usb device %04x:%04x not found", vid, pid)
	}
	u.dev = dev

	if err := dev.SetAutoDetach(true); err != nil {
		log.WithError(err).Debug("auto detach of kernel driver not supported")
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "failed to claim usbtmc interface")
	}
	u.done = done

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if u.out == nil {
				u.out, err = intf.OutEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionIn:
			if u.in == nil {
				u.in, err = intf.InEndpoint(ep.Number)
			}
		}
		if err != nil {
			u.Close()
			return nil, errors.Wrapf(err, "failed to open endpoint %s", ep)
		}
	}
	if u.out == nil || u.in == nil {
		u.Close()
		return nil, errors.New("usbtmc interface has no bulk endpoint pair")
	}

	log.WithFields(logrus.Fields{"device": u.String()}).Info("usbtmc instrument opened")
	return u, nil
}

func (u *USBTMC) String() string {
	return fmt.Sprintf("usbtmc %04x:%04x", u.vid, u.pid)
}

// Write sends cmd as one DEV_DEP_MSG_OUT transfer with EOM set.
func (u *USBTMC) Write(ctx context.Context, cmd string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.write(ctx, cmd)
}

// Ask sends cmd and reads the complete response message.
func (u *USBTMC) Ask(ctx context.Context, cmd string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.write(ctx, cmd); err != nil {
		return nil, err
	}
	return u.read(ctx)
}

func (u *USBTMC) write(ctx context.Context, cmd string) error {
	if u.out == nil {
		return errors.New("usbtmc instrument is closed")
	}

	tctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	frame := encodeDevDepMsgOut(u.tags.next(), []byte(cmd+"\n"), true)
	if _, err := u.out.WriteContext(tctx, frame); err != nil {
		return errors.Wrapf(u.timeoutErr(tctx, err), "usbtmc write %q", cmd)
	}
	u.log.WithField("cmd", cmd).Trace("usbtmc write")
	return nil
}

// read requests DEV_DEP_MSG_IN transfers until one carries EOM. Bulk-IN
// packets that arrive after the header without one of their own are taken as
// continuation of the same transfer, which is how Rigol scopes send long
// waveform blocks.
func (u *USBTMC) read(ctx context.Context) ([]byte, error) {
	var msg []byte
	for {
		tag := u.tags.next()

		tctx, cancel := context.WithTimeout(ctx, u.timeout)
		if _, err := u.out.WriteContext(tctx, encodeRequestDevDepMsgIn(tag, defaultMaxTransferSize)); err != nil {
			cancel()
			return nil, errors.Wrap(u.timeoutErr(tctx, err), "usbtmc request in")
		}

		n, err := u.in.ReadContext(tctx, u.buf)
		if err != nil {
			cancel()
			return nil, errors.Wrap(u.timeoutErr(tctx, err), "usbtmc read")
		}
		h, err := parseBulkInHeader(u.buf[:n], tag)
		if err != nil {
			cancel()
			return nil, err
		}

		payload := append([]byte(nil), u.buf[headerSize:n]...)
		for uint32(len(payload)) < h.TransferSize {
			m, err := u.in.ReadContext(tctx, u.buf)
			if err != nil {
				cancel()
				return nil, errors.Wrap(u.timeoutErr(tctx, err), "usbtmc read continuation")
			}
			if m == 0 {
				cancel()
				return nil, errors.Errorf("usbtmc transfer ended after %d of %d bytes", len(payload), h.TransferSize)
			}
			payload = append(payload, u.buf[:m]...)
		}
		cancel()

		msg = append(msg, payload[:h.TransferSize]...)
		if h.EOM() {
			return msg, nil
		}
	}
}

func (u *USBTMC) timeoutErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}

// Close releases the interface, the device and the libusb context.
func (u *USBTMC) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	var err error
	if u.done != nil {
		u.done()
		u.done = nil
	}
	u.out, u.in = nil, nil
	if u.dev != nil {
		err = u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		if cerr := u.ctx.Close(); err == nil {
			err = cerr
		}
		u.ctx = nil
	}
	return err
}
