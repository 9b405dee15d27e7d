package block

import (
	"encoding/binary"
	"errors"
)

const HeaderSize = 80

type BlockHeader struct {
	Version        uint32   // 0:3
	PrevHash       [32]byte // 4:35
	MerkleRootHash [32]byte // 36:67
	Time           uint32   // 68:71
	NBits          uint32   // 72:75
	Nonce          uint32   // 76:79
}

var ErrBytesLenNot80 = errors.New("ErrBytesLenNot80")
var ErrBadHex = errors.New("ErrBadHex")

func Byte2BlockHeader(b []byte) (*BlockHeader, error) {
	if len(b) != HeaderSize {
		return nil, ErrBytesLenNot80
	}

	bh := BlockHeader{
		Version: binary.LittleEndian.Uint32(b[0:4]),
		Time:    binary.LittleEndian.Uint32(b[68:72]),
		NBits:   binary.LittleEndian.Uint32(b[72:76]),
		Nonce:   binary.LittleEndian.Uint32(b[76:80]),
	}
	copy(bh.PrevHash[:], b[4:36])
	copy(bh.MerkleRootHash[:], b[36:68])

	return &bh, nil
}

func BlockHeader2Byte(bh BlockHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], bh.Version)
	copy(b[4:36], bh.PrevHash[:])
	copy(b[36:68], bh.MerkleRootHash[:])
	binary.LittleEndian.PutUint32(b[68:72], bh.Time)
	binary.LittleEndian.PutUint32(b[72:76], bh.NBits)
	binary.LittleEndian.PutUint32(b[76:80], bh.Nonce)
	return b
}

// PutChipNonce stores a nonce as the chips count it: message word 19 of the
// header, which sha256 reads big endian.
func PutChipNonce(header []byte, nonce uint32) {
	binary.BigEndian.PutUint32(header[76:80], nonce)
}

func SwapByteInSHA256(sha_in []byte) []byte {
	if len(sha_in) != 32 {
		return nil
	}

	sha_out := make([]byte, len(sha_in))
	for i := 0; i < 32; i++ {
		sha_out[i] = sha_in[32-i-1]
	}
	return sha_out
}
