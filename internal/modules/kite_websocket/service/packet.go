package service

import (
	"encoding/binary"
	"errors"
	"time"

	"kite_guard/internal/models"

	"github.com/shopspring/decimal"
)

var ErrShortFrame = errors.New("ticker frame truncated")

// сегменты из младшего байта instrument_token
const (
	segmentCDS = 3
	segmentBCD = 6
)

// priceExponent: во сколько знаков после запятой упакована цена сегмента.
func priceExponent(token uint32) int32 {
	switch token & 0xff {
	case segmentCDS:
		return 7
	case segmentBCD:
		return 4
	default:
		return 2
	}
}

// ParseBinary разбирает бинарный кадр тикера: uint16 число пакетов, далее
// для каждого uint16 длина и сам пакет. Первые 8 байт любого пакета:
// instrument_token и last_price. Кадр в 1 байт: heartbeat.
func ParseBinary(frame []byte, at time.Time) ([]models.PriceTick, error) {
	if len(frame) < 2 {
		return nil, nil
	}

	count := int(binary.BigEndian.Uint16(frame[0:2]))
	ticks := make([]models.PriceTick, 0, count)
	off := 2
	for i := 0; i < count; i++ {
		if off+2 > len(frame) {
			return ticks, ErrShortFrame
		}
		size := int(binary.BigEndian.Uint16(frame[off : off+2]))
		off += 2
		if off+size > len(frame) {
			return ticks, ErrShortFrame
		}
		pkt := frame[off : off+size]
		off += size

		if size < 8 {
			continue
		}
		token := binary.BigEndian.Uint32(pkt[0:4])
		raw := int32(binary.BigEndian.Uint32(pkt[4:8]))
		ticks = append(ticks, models.PriceTick{
			InstrumentToken: token,
			LastPrice:       decimal.New(int64(raw), -priceExponent(token)),
			Timestamp:       at,
		})
	}
	return ticks, nil
}
