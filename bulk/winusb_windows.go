//go:build windows
// +build windows

package bulk

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	logInternal "github.com/hifihedgehog/switch2usb/log"
)

// The vendor bulk interface is bound to WinUSB through the device's
// MS OS 2.0 descriptors and registers this DeviceInterfaceGUID, so
// enumerating by it already narrows the scan to the right interface of
// the right device family.
var deviceInterfaceGUID = windows.GUID{
	Data1: 0x6F13725E,
	Data2: 0xEF0E,
	Data3: 0x4FD3,
	Data4: [8]byte{0xAE, 0x5F, 0xB2, 0xDE, 0x98, 0x9E, 0xC8, 0x25},
}

// --- WinAPI binding ---
var (
	modsetupapi = windows.NewLazySystemDLL("setupapi.dll")
	modwinusb   = windows.NewLazySystemDLL("winusb.dll")

	procSetupDiGetClassDevs             = modsetupapi.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInterfaces     = modsetupapi.NewProc("SetupDiEnumDeviceInterfaces")
	procSetupDiGetDeviceInterfaceDetail = modsetupapi.NewProc("SetupDiGetDeviceInterfaceDetailW")
	procSetupDiDestroyDeviceInfoList    = modsetupapi.NewProc("SetupDiDestroyDeviceInfoList")

	procWinUsbInitialize             = modwinusb.NewProc("WinUsb_Initialize")
	procWinUsbFree                   = modwinusb.NewProc("WinUsb_Free")
	procWinUsbQueryInterfaceSettings = modwinusb.NewProc("WinUsb_QueryInterfaceSettings")
	procWinUsbQueryPipe              = modwinusb.NewProc("WinUsb_QueryPipe")
	procWinUsbSetPipePolicy          = modwinusb.NewProc("WinUsb_SetPipePolicy")
	procWinUsbWritePipe              = modwinusb.NewProc("WinUsb_WritePipe")
	procWinUsbReadPipe               = modwinusb.NewProc("WinUsb_ReadPipe")
	procWinUsbGetOverlappedResult    = modwinusb.NewProc("WinUsb_GetOverlappedResult")
	procWinUsbAbortPipe              = modwinusb.NewProc("WinUsb_AbortPipe")
	procWinUsbResetPipe              = modwinusb.NewProc("WinUsb_ResetPipe")
)

const (
	digcfPresent         = 0x00000002
	digcfDeviceInterface = 0x00000010

	pipeTransferTimeout = 0x03 // WINUSB_PIPE_POLICY
	usbdPipeTypeBulk    = 2

	defaultPipeTimeoutMs = 1000
	flushPipeTimeoutMs   = 50

	directReadTimeout = 1000 * time.Millisecond
	abortSettleMs     = 100
)

type spDeviceInterfaceData struct {
	Size     uint32
	GUID     windows.GUID
	Flags    uint32
	Reserved uintptr
}

type usbInterfaceDescriptor struct {
	Length            byte
	DescriptorType    byte
	InterfaceNumber   byte
	AlternateSetting  byte
	NumEndpoints      byte
	InterfaceClass    byte
	InterfaceSubClass byte
	InterfaceProtocol byte
	Interface         byte
}

type winusbPipeInformation struct {
	PipeType          uint32
	PipeID            byte
	MaximumPacketSize uint16
	Interval          byte
}

// directState is the WinUSB half of a Transport.
type directState struct {
	fileHandle   windows.Handle
	winusbHandle uintptr
	outPipe      byte
	inPipe       byte
}

// openDirect scans the device interfaces registered under the bulk
// interface GUID, keeps candidates whose path carries the expected vendor
// identity, and takes the first one that opens and exposes a bulk pipe
// pair. A false return carries no detail; the caller falls back to the
// generic backend.
func (t *Transport) openDirect(dev Descriptor) bool {
	devInfo, _, _ := procSetupDiGetClassDevs.Call(
		uintptr(unsafe.Pointer(&deviceInterfaceGUID)),
		0, 0,
		digcfPresent|digcfDeviceInterface,
	)
	if windows.Handle(devInfo) == windows.InvalidHandle {
		return false
	}
	defer procSetupDiDestroyDeviceInfoList.Call(devInfo)

	vendorTag := fmt.Sprintf("vid_%04x", dev.VendorID)

	for index := uint32(0); ; index++ {
		var ifData spDeviceInterfaceData
		ifData.Size = uint32(unsafe.Sizeof(ifData))

		ret, _, _ := procSetupDiEnumDeviceInterfaces.Call(
			devInfo, 0,
			uintptr(unsafe.Pointer(&deviceInterfaceGUID)),
			uintptr(index),
			uintptr(unsafe.Pointer(&ifData)),
		)
		if ret == 0 {
			break
		}

		path := deviceInterfacePath(devInfo, &ifData)
		if path == "" || !strings.Contains(strings.ToLower(path), vendorTag) {
			continue
		}

		pathPtr, err := windows.UTF16PtrFromString(path)
		if err != nil {
			continue
		}
		fh, err := windows.CreateFile(pathPtr,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
			nil, windows.OPEN_EXISTING,
			windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OVERLAPPED,
			0)
		if err != nil {
			continue
		}

		var wh uintptr
		ret, _, _ = procWinUsbInitialize.Call(uintptr(fh), uintptr(unsafe.Pointer(&wh)))
		if ret == 0 {
			windows.CloseHandle(fh)
			continue
		}

		var ifDesc usbInterfaceDescriptor
		ret, _, _ = procWinUsbQueryInterfaceSettings.Call(wh, 0, uintptr(unsafe.Pointer(&ifDesc)))
		if ret == 0 {
			procWinUsbFree.Call(wh)
			windows.CloseHandle(fh)
			continue
		}

		var outPipe, inPipe byte
		for ep := byte(0); ep < ifDesc.NumEndpoints; ep++ {
			var pipe winusbPipeInformation
			ret, _, _ := procWinUsbQueryPipe.Call(wh, 0, uintptr(ep), uintptr(unsafe.Pointer(&pipe)))
			if ret == 0 || pipe.PipeType != usbdPipeTypeBulk {
				continue
			}
			if pipe.PipeID&endpointDirIn != 0 {
				inPipe = pipe.PipeID
			} else {
				outPipe = pipe.PipeID
			}
		}
		if outPipe == 0 || inPipe == 0 {
			procWinUsbFree.Call(wh)
			windows.CloseHandle(fh)
			continue
		}

		setPipeTimeout(wh, outPipe, defaultPipeTimeoutMs)
		setPipeTimeout(wh, inPipe, defaultPipeTimeoutMs)

		t.direct = directState{
			fileHandle:   fh,
			winusbHandle: wh,
			outPipe:      outPipe,
			inPipe:       inPipe,
		}
		logInternal.LogMessage(logInternal.DEBUG, "WinUSB backend open: out=0x%02x in=0x%02x path=%s", outPipe, inPipe, path)
		return true
	}
	return false
}

// deviceInterfacePath resolves a device interface to its path string with
// the usual two-call size query.
func deviceInterfacePath(devInfo uintptr, ifData *spDeviceInterfaceData) string {
	var needed uint32
	procSetupDiGetDeviceInterfaceDetail.Call(
		devInfo,
		uintptr(unsafe.Pointer(ifData)),
		0, 0,
		uintptr(unsafe.Pointer(&needed)),
		0,
	)
	if needed == 0 {
		return ""
	}

	detail := make([]byte, needed)
	// cbSize of SP_DEVICE_INTERFACE_DETAIL_DATA_W: 8 on 64-bit, 6 on 32-bit.
	if unsafe.Sizeof(uintptr(0)) == 8 {
		*(*uint32)(unsafe.Pointer(&detail[0])) = 8
	} else {
		*(*uint32)(unsafe.Pointer(&detail[0])) = 6
	}

	ret, _, _ := procSetupDiGetDeviceInterfaceDetail.Call(
		devInfo,
		uintptr(unsafe.Pointer(ifData)),
		uintptr(unsafe.Pointer(&detail[0])),
		uintptr(needed),
		0, 0,
	)
	if ret == 0 {
		return ""
	}

	pathLen := (len(detail) - 4) / 2
	return windows.UTF16ToString(unsafe.Slice((*uint16)(unsafe.Pointer(&detail[4])), pathLen))
}

func setPipeTimeout(winusbHandle uintptr, pipe byte, timeoutMs uint32) {
	procWinUsbSetPipePolicy.Call(
		winusbHandle,
		uintptr(pipe),
		pipeTransferTimeout,
		uintptr(unsafe.Sizeof(timeoutMs)),
		uintptr(unsafe.Pointer(&timeoutMs)),
	)
}

// directWrite issues one overlapped write of the whole buffer on the OUT
// pipe, waiting at most timeout before aborting the transfer.
func (t *Transport) directWrite(p []byte, timeout time.Duration) (int, error) {
	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(event)

	var ov windows.Overlapped
	ov.HEvent = event

	var transferred uint32
	ret, _, callErr := procWinUsbWritePipe.Call(
		t.direct.winusbHandle,
		uintptr(t.direct.outPipe),
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(len(p)),
		uintptr(unsafe.Pointer(&transferred)),
		uintptr(unsafe.Pointer(&ov)),
	)
	if ret == 0 {
		if callErr != windows.ERROR_IO_PENDING {
			return 0, fmt.Errorf("write pipe: %w", callErr)
		}
		transferred, err = t.waitPipe(&ov, t.direct.outPipe, timeout)
		if err != nil {
			return 0, err
		}
	}
	return int(transferred), nil
}

// directRead fills p in packet-sized chunks. A chunk failure after some
// progress returns the bytes already read; only a failing first chunk is
// reported as an error.
func (t *Transport) directRead(p []byte) (int, error) {
	return readChunked(p, true, t.directReadChunk)
}

func (t *Transport) directReadChunk(p []byte) (int, error) {
	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(event)

	var ov windows.Overlapped
	ov.HEvent = event

	var transferred uint32
	ret, _, callErr := procWinUsbReadPipe.Call(
		t.direct.winusbHandle,
		uintptr(t.direct.inPipe),
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(len(p)),
		uintptr(unsafe.Pointer(&transferred)),
		uintptr(unsafe.Pointer(&ov)),
	)
	if ret == 0 {
		if callErr != windows.ERROR_IO_PENDING {
			return 0, fmt.Errorf("read pipe: %w", callErr)
		}
		transferred, err = t.waitPipe(&ov, t.direct.inPipe, directReadTimeout)
		if err != nil {
			return 0, err
		}
	}
	return int(transferred), nil
}

// waitPipe blocks on the overlapped completion event for at most timeout.
// When the wait does not complete, the in-flight transfer is aborted and
// given a moment to settle before the event handle is released; an expired
// bound reports ErrTimeout, a failed wait keeps its own error.
func (t *Transport) waitPipe(ov *windows.Overlapped, pipe byte, timeout time.Duration) (uint32, error) {
	status, waitErr := windows.WaitForSingleObject(ov.HEvent, uint32(timeout.Milliseconds()))
	if err := waitOutcome(status, waitErr); err != nil {
		procWinUsbAbortPipe.Call(t.direct.winusbHandle, uintptr(pipe))
		windows.WaitForSingleObject(ov.HEvent, abortSettleMs)
		return 0, err
	}

	var transferred uint32
	ret, _, callErr := procWinUsbGetOverlappedResult.Call(
		t.direct.winusbHandle,
		uintptr(unsafe.Pointer(ov)),
		uintptr(unsafe.Pointer(&transferred)),
		0,
	)
	if ret == 0 {
		return 0, fmt.Errorf("overlapped result: %w", callErr)
	}
	return transferred, nil
}

// flushDirect resets both pipes and drains whatever a previous session
// left in the IN pipe, reading with a short timeout until a read fails.
// Called once right after a successful open.
func (t *Transport) flushDirect() {
	procWinUsbResetPipe.Call(t.direct.winusbHandle, uintptr(t.direct.outPipe))
	procWinUsbResetPipe.Call(t.direct.winusbHandle, uintptr(t.direct.inPipe))

	setPipeTimeout(t.direct.winusbHandle, t.direct.inPipe, flushPipeTimeoutMs)
	var buf [bulkPacketSize]byte
	for {
		var n uint32
		ret, _, _ := procWinUsbReadPipe.Call(
			t.direct.winusbHandle,
			uintptr(t.direct.inPipe),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&n)),
			0,
		)
		if ret == 0 {
			break
		}
	}
	setPipeTimeout(t.direct.winusbHandle, t.direct.inPipe, defaultPipeTimeoutMs)
}

// closeDirect frees the WinUSB session and then the file handle, each only
// if still held.
func (t *Transport) closeDirect() {
	if t.direct.winusbHandle != 0 {
		procWinUsbFree.Call(t.direct.winusbHandle)
		t.direct.winusbHandle = 0
	}
	if t.direct.fileHandle != 0 && t.direct.fileHandle != windows.InvalidHandle {
		windows.CloseHandle(t.direct.fileHandle)
		t.direct.fileHandle = 0
	}
	t.direct.outPipe = 0
	t.direct.inPipe = 0
}
