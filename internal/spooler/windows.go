//go:build windows

package spooler

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool               = windows.NewLazySystemDLL("winspool.drv")
	procEnumPrintersW      = winspool.NewProc("EnumPrintersW")
	procGetDefaultPrinterW = winspool.NewProc("GetDefaultPrinterW")
	procOpenPrinterW       = winspool.NewProc("OpenPrinterW")
	procClosePrinter       = winspool.NewProc("ClosePrinter")
	procEnumJobsW          = winspool.NewProc("EnumJobsW")
)

const (
	printerEnumLocal       = 0x00000002
	printerEnumConnections = 0x00000004
	allJobs                = 0xFFFFFFFF
)

type printerInfo4 struct {
	PrinterName *uint16
	ServerName  *uint16
	Attributes  uint32
}

type jobInfo1 struct {
	JobID        uint32
	PrinterName  *uint16
	MachineName  *uint16
	UserName     *uint16
	Document     *uint16
	Datatype     *uint16
	StatusText   *uint16
	Status       uint32
	Priority     uint32
	Position     uint32
	TotalPages   uint32
	PagesPrinted uint32
	Submitted    windows.Systemtime
}

// Windows queries the local spooler through winspool.drv.
type Windows struct{}

func newWindows() (Spooler, error) {
	if err := winspool.Load(); err != nil {
		return nil, fmt.Errorf("load winspool.drv: %w", err)
	}
	return &Windows{}, nil
}

func (w *Windows) Printers(ctx context.Context) ([]string, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)
	buf, returned, err := enumBuffer(func(ptr, size uintptr, needed, count *uint32) (uintptr, error) {
		r1, _, callErr := procEnumPrintersW.Call(flags, 0, 4, ptr, size,
			uintptr(unsafe.Pointer(needed)), uintptr(unsafe.Pointer(count)))
		return r1, callErr
	})
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	if returned == 0 {
		return nil, nil
	}

	infos := unsafe.Slice((*printerInfo4)(unsafe.Pointer(&buf[0])), returned)
	printers := make([]string, 0, len(infos))
	for _, info := range infos {
		printers = append(printers, windows.UTF16PtrToString(info.PrinterName))
	}
	return printers, nil
}

func (w *Windows) DefaultPrinter(ctx context.Context) (string, error) {
	var size uint32
	r1, _, err := procGetDefaultPrinterW.Call(0, uintptr(unsafe.Pointer(&size)))
	if r1 == 0 && !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		return "", ErrNoDefaultPrinter
	}
	if size == 0 {
		return "", ErrNoDefaultPrinter
	}
	name := make([]uint16, size)
	r1, _, err = procGetDefaultPrinterW.Call(uintptr(unsafe.Pointer(&name[0])), uintptr(unsafe.Pointer(&size)))
	if r1 == 0 {
		return "", fmt.Errorf("default printer: %w", err)
	}
	return windows.UTF16ToString(name), nil
}

func (w *Windows) Entries(ctx context.Context, printer string) ([]EntryInfo, error) {
	namePtr, err := windows.UTF16PtrFromString(printer)
	if err != nil {
		return nil, fmt.Errorf("printer name: %w", err)
	}

	var handle windows.Handle
	r1, _, callErr := procOpenPrinterW.Call(uintptr(unsafe.Pointer(namePtr)), uintptr(unsafe.Pointer(&handle)), 0)
	if r1 == 0 {
		return nil, fmt.Errorf("open printer %s: %w", printer, callErr)
	}
	defer procClosePrinter.Call(uintptr(handle))

	buf, returned, err := enumBuffer(func(ptr, size uintptr, needed, count *uint32) (uintptr, error) {
		r1, _, callErr := procEnumJobsW.Call(uintptr(handle), 0, allJobs, 1, ptr, size,
			uintptr(unsafe.Pointer(needed)), uintptr(unsafe.Pointer(count)))
		return r1, callErr
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", printer, err)
	}
	if returned == 0 {
		return nil, nil
	}

	infos := unsafe.Slice((*jobInfo1)(unsafe.Pointer(&buf[0])), returned)
	entries := make([]EntryInfo, 0, len(infos))
	for _, info := range infos {
		entry := EntryInfo{
			ID:       int(info.JobID),
			Document: windows.UTF16PtrToString(info.Document),
			Status:   info.Status,
			Position: int(info.Position),
		}
		if info.StatusText != nil {
			entry.StatusText = windows.UTF16PtrToString(info.StatusText)
		}
		if info.TotalPages > 0 {
			pages := int(info.TotalPages)
			entry.TotalPages = &pages
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// enumBuffer runs the two-call winspool enumeration pattern: ask for the
// required size, then fill a buffer of that size.
func enumBuffer(call func(ptr, size uintptr, needed, count *uint32) (uintptr, error)) ([]byte, uint32, error) {
	var needed, returned uint32
	r1, err := call(0, 0, &needed, &returned)
	if r1 != 0 {
		// Nothing to enumerate.
		return nil, 0, nil
	}
	if !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		if err == nil {
			err = errors.New("winspool enumeration failed")
		}
		return nil, 0, err
	}
	if needed == 0 {
		return nil, 0, nil
	}

	buf := make([]byte, needed)
	r1, err = call(uintptr(unsafe.Pointer(&buf[0])), uintptr(needed), &needed, &returned)
	if r1 == 0 {
		return nil, 0, err
	}
	return buf, returned, nil
}
