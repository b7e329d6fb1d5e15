package internal

import (
	"bytes"
	"encoding/binary"
	"slices"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:     CommandTSetE,
				Stamp:    42,
				Keys:     []string{"testkey"},
				ExpireIn: 100,
				DeleteIn: 200,
				Value:    []byte("testvalue"),
			},
			expected: headerSize + 4 + 7 + 9,
		},
		{
			name: "Command with several keys",
			command: Command{
				Type: CommandTDelete,
				Keys: []string{"a", "bb", ""},
			},
			expected: headerSize + (4 + 1) + (4 + 2) + 4,
		},
		{
			name:     "Tick without keys",
			command:  Command{Type: CommandTTick, Stamp: 7},
			expected: headerSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Standard command with value",
			command: Command{
				Type:     CommandTSetE,
				Stamp:    1 << 40,
				Keys:     []string{"testkey"},
				ExpireIn: 100,
				DeleteIn: 200,
				Value:    []byte("testvalue"),
			},
		},
		{
			name: "Delete of several keys",
			command: Command{
				Type:  CommandTDelete,
				Stamp: 5,
				Keys:  []string{"k1", "k2", "k3"},
			},
		},
		{
			name: "Command with empty key",
			command: Command{
				Type:  CommandTAppend,
				Keys:  []string{""},
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Command with empty value",
			command: Command{
				Type:  CommandTSet,
				Keys:  []string{"testkey"},
				Value: []byte{},
			},
		},
		{
			name: "Command with large values",
			command: Command{
				Type:     CommandTSetE,
				Stamp:    18446744073709551615,
				Keys:     []string{"testkey"},
				ExpireIn: 18446744073709551615,
				DeleteIn: 18446744073709551615,
				Value:    []byte("testvalue"),
			},
		},
		{
			name: "Command with binary value",
			command: Command{
				Type:  CommandTSet,
				Keys:  []string{"binary"},
				Value: []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "Command with Unicode key",
			command: Command{
				Type:  CommandTSet,
				Keys:  []string{"你好世界"},
				Value: []byte("unicode test"),
			},
		},
		{
			name:    "Tick",
			command: Command{Type: CommandTTick, Stamp: 99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Stamp != tt.command.Stamp {
				t.Errorf("Stamp mismatch: got %v, want %v", newCommand.Stamp, tt.command.Stamp)
			}
			if !slices.Equal(newCommand.Keys, tt.command.Keys) {
				t.Errorf("Keys mismatch: got %q, want %q", newCommand.Keys, tt.command.Keys)
			}
			if newCommand.ExpireIn != tt.command.ExpireIn {
				t.Errorf("ExpireIn mismatch: got %v, want %v", newCommand.ExpireIn, tt.command.ExpireIn)
			}
			if newCommand.DeleteIn != tt.command.DeleteIn {
				t.Errorf("DeleteIn mismatch: got %v, want %v", newCommand.DeleteIn, tt.command.DeleteIn)
			}
			if !bytes.Equal(newCommand.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", newCommand.Value, tt.command.Value)
			}
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d", tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	header := func(numKeys uint32) []byte {
		data := make([]byte, headerSize)
		data[0] = byte(CommandTDelete)
		binary.BigEndian.PutUint32(data[25:29], numKeys)
		return data
	}

	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name:        "Too many keys",
			data:        header(1000),
			expectedErr: "data too short for 1000 keys",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := header(1)
				return binary.BigEndian.AppendUint32(data, 1000)
			}(),
			expectedErr: "data too short for key of length 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:     CommandTSetE,
		Stamp:    777,
		Keys:     []string{"testkey"},
		ExpireIn: 12345,
		DeleteIn: 67890,
		Value:    []byte("testvalue"),
	}

	expected := make([]byte, 0, cmd.SizeBytes())
	expected = append(expected, byte(CommandTSetE))
	expected = binary.BigEndian.AppendUint64(expected, 777)
	expected = binary.BigEndian.AppendUint64(expected, 12345)
	expected = binary.BigEndian.AppendUint64(expected, 67890)
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = binary.BigEndian.AppendUint32(expected, 7)
	expected = append(expected, "testkey"...)
	expected = append(expected, "testvalue"...)

	if serialized := cmd.Serialize(); !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestBufferReuse tests that Deserialize reuses buffers when possible
func TestBufferReuse(t *testing.T) {
	cmd := Command{
		Type:  CommandTSet,
		Keys:  []string{"key"},
		Value: []byte("original value"),
	}

	cmd2 := Command{Type: CommandTSet, Keys: []string{"key"}, Value: []byte("changed value")}
	if err := cmd.Deserialize(cmd2.Serialize()); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if !bytes.Equal(cmd.Value, []byte("changed value")) {
		t.Errorf("Value not correctly deserialized: got %q, want %q", string(cmd.Value), "changed value")
	}

	cmd3 := Command{
		Type:  CommandTSet,
		Keys:  []string{"key"},
		Value: []byte("this is a much longer value that won't fit in the original buffer"),
	}
	beforeCap := cap(cmd.Value)
	if err := cmd.Deserialize(cmd3.Serialize()); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if cap(cmd.Value) <= beforeCap {
		t.Errorf("Buffer capacity did not increase for larger value: still %d", cap(cmd.Value))
	}
	if !bytes.Equal(cmd.Value, cmd3.Value) {
		t.Errorf("Value not correctly deserialized")
	}
}
