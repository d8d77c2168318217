// Package firehose drives the Qualcomm Firehose command layer: XML
// command framing over Transport, response parsing, chunked bulk
// read/write, storage configuration, GPT read, sparse expansion, and
// patch application (spec §4.4).
package firehose

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// MaxFrameBytes is the wire limit for one encoded command document
// (spec §3/§4.4).
const MaxFrameBytes = 4096

const xmlProlog = `<?xml version="1.0" ?>`

// ConfigureCmd negotiates storage type and chunk size. The device
// responds with a (possibly revised) MaxPayloadSizeToTargetInBytes that
// becomes the session's chunk size.
type ConfigureCmd struct {
	XMLName                       xml.Name `xml:"configure"`
	MemoryName                    string   `xml:"MemoryName,attr"`
	MaxPayloadSizeToTargetInBytes uint32   `xml:"MaxPayloadSizeToTargetInBytes,attr"`
	Verbose                       int      `xml:"Verbose,attr"`
	ZLPAwareHost                  int      `xml:"ZLPAwareHost,attr"`
}

// ProgramCmd requests a bulk write of num_partition_sectors sectors
// starting at start_sector on the given LUN.
type ProgramCmd struct {
	XMLName                xml.Name `xml:"program"`
	SectorSizeInBytes      uint32   `xml:"SECTOR_SIZE_IN_BYTES,attr"`
	PhysicalPartitionNumber int     `xml:"physical_partition_number,attr"`
	StartSector            string   `xml:"start_sector,attr"`
	NumPartitionSectors    uint64   `xml:"num_partition_sectors,attr"`
	Filename               string   `xml:"filename,attr"`
}

// ReadCmd requests a bulk read of num_partition_sectors sectors.
type ReadCmd struct {
	XMLName                 xml.Name `xml:"read"`
	SectorSizeInBytes       uint32   `xml:"SECTOR_SIZE_IN_BYTES,attr"`
	PhysicalPartitionNumber int      `xml:"physical_partition_number,attr"`
	StartSector             string   `xml:"start_sector,attr"`
	NumPartitionSectors     uint64   `xml:"num_partition_sectors,attr"`
}

// EraseCmd erases a whole partition; no payload follows.
type EraseCmd struct {
	XMLName                 xml.Name `xml:"erase"`
	SectorSizeInBytes       uint32   `xml:"SECTOR_SIZE_IN_BYTES,attr"`
	PhysicalPartitionNumber int      `xml:"physical_partition_number,attr"`
	StartSector             string   `xml:"start_sector,attr"`
	NumPartitionSectors     uint64   `xml:"num_partition_sectors,attr"`
}

// PatchCmd rewrites a small caller-supplied field in place, typically a
// GPT header or entry-array CRC after a program that touched layout
// (spec §4.4). The engine never computes byte_offset/value; the caller
// does.
type PatchCmd struct {
	XMLName                 xml.Name `xml:"patch"`
	ByteOffset               uint64  `xml:"byte_offset,attr"`
	SizeInBytes              uint32  `xml:"size_in_bytes,attr"`
	Filename                 string  `xml:"filename,attr"`
	PhysicalPartitionNumber  int     `xml:"physical_partition_number,attr"`
	StartSector              string  `xml:"start_sector,attr"`
	Value                    string  `xml:"value,attr"`
}

// SetBootableStorageDriveCmd switches the UFS boot LUN; accepted but a
// no-op on eMMC (spec §4.4).
type SetBootableStorageDriveCmd struct {
	XMLName xml.Name `xml:"setbootablestoragedrive"`
	Value   int      `xml:"value,attr"`
}

// PowerCmd requests a reset, EDL re-entry, or power-off. The engine
// does not await a response beyond the immediate ACK.
type PowerCmd struct {
	XMLName xml.Name `xml:"power"`
	Value   string   `xml:"value,attr"`
}

// NopCmd is used to drain the device's response queue, including as the
// cooperative-cancellation drain step named in spec §5.
type NopCmd struct {
	XMLName xml.Name `xml:"nop"`
}

// GetStorageInfoCmd queries storage geometry.
type GetStorageInfoCmd struct {
	XMLName                 xml.Name `xml:"getstorageinfo"`
	PhysicalPartitionNumber int      `xml:"physical_partition_number,attr"`
}

// EncodeFrame wraps cmd's encoded XML element in the <data>...</data>
// envelope every Firehose frame requires, and verifies the result fits
// within MaxFrameBytes.
func EncodeFrame(cmd any) ([]byte, error) {
	inner, err := xml.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("firehose: encode command: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xmlProlog)
	buf.WriteString("<data>")
	buf.Write(inner)
	buf.WriteString("</data>")

	if buf.Len() > MaxFrameBytes {
		return nil, fmt.Errorf("firehose: encoded frame %d bytes exceeds %d-byte limit", buf.Len(), MaxFrameBytes)
	}
	return buf.Bytes(), nil
}
