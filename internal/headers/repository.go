package headers

import (
	"encoding/binary"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/CosmWasm/hostapi/types"
)

var (
	headerPrefix = []byte("hdr:")
	numberPrefix = []byte("num:")
)

// Repository stores headers by hash and indexes them by number.
type Repository struct {
	db dbm.DB
}

func NewRepository(db dbm.DB) *Repository {
	return &Repository{db: db}
}

func headerKey(hash types.Hash) []byte {
	return append(append([]byte{}, headerPrefix...), hash[:]...)
}

func numberKey(number uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, numberPrefix...), number)
}

// PutHeader stores h and makes it the canonical header for its number.
func (r *Repository) PutHeader(h Header) (types.Hash, error) {
	enc, err := h.Encode()
	if err != nil {
		return types.Hash{}, err
	}
	hash := h.Hash()
	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(headerKey(hash), enc); err != nil {
		return types.Hash{}, err
	}
	if err := batch.Set(numberKey(h.Number), hash[:]); err != nil {
		return types.Hash{}, err
	}
	if err := batch.Write(); err != nil {
		return types.Hash{}, fmt.Errorf("%w: storing header %s: %w", types.ErrStorage, hash, err)
	}
	return hash, nil
}

func (r *Repository) GetHeader(hash types.Hash) (Header, error) {
	enc, err := r.db.Get(headerKey(hash))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	if enc == nil {
		return Header{}, fmt.Errorf("%w: %s", types.ErrHeaderNotFound, hash)
	}
	h, err := DecodeHeader(enc)
	if err != nil {
		return Header{}, fmt.Errorf("%w: decoding header %s: %w", types.ErrStorage, hash, err)
	}
	return h, nil
}

func (r *Repository) GetHashByNumber(number uint32) (types.Hash, error) {
	bz, err := r.db.Get(numberKey(number))
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	if bz == nil {
		return types.Hash{}, fmt.Errorf("%w: block #%d", types.ErrHeaderNotFound, number)
	}
	return types.NewHash(bz)
}

func (r *Repository) GetNumberByHash(hash types.Hash) (uint32, error) {
	h, err := r.GetHeader(hash)
	if err != nil {
		return 0, err
	}
	return h.Number, nil
}
