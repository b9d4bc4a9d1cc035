package capture

import (
	"context"
	"fmt"
	"os"
	"unsafe"

	"github.com/embedops/mediacore/internal/models"
	"golang.org/x/sys/unix"
)

// V4L2 ioctl request codes and struct layout, per
// include/uapi/linux/videodev2.h. Encoding follows the standard Linux ioctl
// command layout (type/number/size/direction packed into the request word).
const (
	iocRead  = 2
	iocWrite = 1

	iocNumberBits = 8
	iocTypeBits   = 8
	iocSizeBits   = 14

	numberShift = 0
	typeShift   = numberShift + iocNumberBits
	sizeShift   = typeShift + iocTypeBits
	dirShift    = sizeShift + iocSizeBits

	v4l2Magic = uintptr('V')

	bufTypeVideoCapture uint32 = 1
)

func iowr(nr, size uintptr) uintptr {
	return (uintptr(iocRead|iocWrite) << dirShift) | (v4l2Magic << typeShift) | (nr << numberShift) | (size << sizeShift)
}

// v4l2Capability mirrors struct v4l2_capability (trimmed to the fields we
// read); VIDIOC_QUERYCAP is used purely as an IsPresent liveness check.
type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// v4l2PixFormat mirrors the v4l2_pix_format union member used for
// VIDIOC_G_FMT on a VIDEO_CAPTURE device.
type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// v4l2Format mirrors struct v4l2_format: a type tag followed by a union
// large enough for any format variant. We only decode the pix member.
type v4l2Format struct {
	Type uint32
	_    [4]byte // union alignment padding on 64-bit
	raw  [200]byte
}

var (
	vidiocQuerycap = iowr(0, unsafe.Sizeof(v4l2Capability{}))
	vidiocGFmt     = iowr(4, unsafe.Sizeof(v4l2Format{}))
)

// V4L2Prober queries capture devices via the Video4Linux2 ioctl API. It is
// the production Prober for direct-HDMI capture devices and (via the same
// ioctls) HDMI-bridge subdevices that expose a v4l2 node.
type V4L2Prober struct{}

// NewV4L2Prober returns a Prober backed by V4L2 ioctls.
func NewV4L2Prober() *V4L2Prober {
	return &V4L2Prober{}
}

// IsPresent opens the device node and issues VIDIOC_QUERYCAP. It does not
// start streaming or alter device state.
func (p *V4L2Prober) IsPresent(ctx context.Context, devicePath string) bool {
	sig, err := boundedProbe(ctx, func(context.Context) (*Signal, error) {
		f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var cap v4l2Capability
		if err := ioctl(f.Fd(), vidiocQuerycap, uintptr(unsafe.Pointer(&cap))); err != nil {
			return nil, err
		}
		return &Signal{}, nil
	})
	return err == nil && sig != nil
}

// CurrentSignal issues VIDIOC_G_FMT to read the device's currently-detected
// capture resolution. A 0x0 report (no HDMI signal) is translated to a nil
// Signal per the C2 contract.
func (p *V4L2Prober) CurrentSignal(ctx context.Context, devicePath string, class models.CapabilityClass) (*Signal, error) {
	return boundedProbe(ctx, func(context.Context) (*Signal, error) {
		f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", devicePath, err)
		}
		defer f.Close()

		var format v4l2Format
		format.Type = bufTypeVideoCapture
		if err := ioctl(f.Fd(), vidiocGFmt, uintptr(unsafe.Pointer(&format))); err != nil {
			return nil, fmt.Errorf("VIDIOC_G_FMT %s: %w", devicePath, err)
		}

		pix := (*v4l2PixFormat)(unsafe.Pointer(&format.raw[0]))
		if pix.Width == 0 || pix.Height == 0 {
			return nil, nil
		}

		return &Signal{
			Width:  int(pix.Width),
			Height: int(pix.Height),
			// V4L2's base G_FMT call does not carry frame interval, so FPS
			// is left 0; the ingest worker builds its pipelines at a fixed
			// 30fps and does not read this field.
			FPS: 0,
		}, nil
	})
}

func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
