// Package bluez runs an ANCS session over a phone connected through the
// BlueZ D-Bus API. The phone must already be connected and bonded; ANCS
// characteristics only appear after pairing.
package bluez

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/wire/ancs"
)

const (
	busName                 = "org.bluez"
	deviceInterface         = "org.bluez.Device1"
	characteristicInterface = "org.bluez.GattCharacteristic1"
	propertiesInterface     = "org.freedesktop.DBus.Properties"

	getManagedObjects = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	propertiesChanged = propertiesInterface + ".PropertiesChanged"

	unknownObject = "org.freedesktop.DBus.Error.UnknownObject"

	maxPropertyFailures = 3

	logPrefix = "bluez"
)

// ErrCharacteristicNotFound means the device does not expose ANCS (not
// bonded, or services not yet resolved)
var ErrCharacteristicNotFound = errors.New("bluez: characteristic not found")

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// DevicePath returns the BlueZ object path of address on adapter (e.g. "hci0")
func DevicePath(adapter, address string) dbus.ObjectPath {
	dev := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, dev))
}

// Transport implements session.Transport on top of BlueZ GATT characteristics
type Transport struct {
	conn   *dbus.Conn
	device dbus.ObjectPath
	chars  map[uuid.UUID]dbus.ObjectPath

	mu               sync.Mutex
	handlers         map[dbus.ObjectPath]func([]byte)
	propertyFailures int

	signals chan *dbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Dial connects to the system bus and opens the device at address on adapter
func Dial(adapter, address string) (*Transport, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect to system bus: %w", err)
	}
	return Open(conn, DevicePath(adapter, address))
}

// Open resolves the ANCS characteristics under device and starts
// listening for value notifications
func Open(conn *dbus.Conn, device dbus.ObjectPath) (*Transport, error) {
	objects := make(managedObjects)
	if err := conn.Object(busName, "/").Call(getManagedObjects, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez: get managed objects: %w", err)
	}

	chars, err := findCharacteristics(objects, device, []uuid.UUID{
		ancs.NotificationSourceUUID,
		ancs.ControlPointUUID,
		ancs.DataSourceUUID,
	})
	if err != nil {
		return nil, err
	}

	t := &Transport{
		conn:     conn,
		device:   device,
		chars:    chars,
		handlers: make(map[dbus.ObjectPath]func([]byte)),
		signals:  make(chan *dbus.Signal, 100),
		done:     make(chan struct{}),
	}
	conn.Signal(t.signals)

	t.wg.Add(1)
	go t.dispatch()

	logger.Info(logPrefix, "opened %s", device)
	return t, nil
}

// findCharacteristics maps each wanted UUID to its characteristic object under device
func findCharacteristics(objects managedObjects, device dbus.ObjectPath, wanted []uuid.UUID) (map[uuid.UUID]dbus.ObjectPath, error) {
	found := make(map[uuid.UUID]dbus.ObjectPath, len(wanted))
	prefix := string(device) + "/"

	for path, interfaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := interfaces[characteristicInterface]
		if !ok {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		s, ok := v.Value().(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		for _, w := range wanted {
			if id == w {
				found[w] = path
			}
		}
	}

	for _, w := range wanted {
		if _, ok := found[w]; !ok {
			return nil, fmt.Errorf("%w: %s under %s", ErrCharacteristicNotFound, ancs.CharacteristicName(w), device)
		}
	}
	return found, nil
}

func matchRule(path dbus.ObjectPath) string {
	return fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged',path='%s'", propertiesInterface, path)
}

// Subscribe enables notifications on char. Values are delivered to handler
// from the signal goroutine.
func (t *Transport) Subscribe(char uuid.UUID, handler func([]byte)) error {
	path, ok := t.chars[char]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCharacteristicNotFound, char)
	}

	if err := t.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule(path)).Err; err != nil {
		return fmt.Errorf("bluez: add match for %s: %w", ancs.CharacteristicName(char), err)
	}
	t.mu.Lock()
	t.handlers[path] = handler
	t.mu.Unlock()

	if err := t.conn.Object(busName, path).Call(characteristicInterface+".StartNotify", 0).Err; err != nil {
		t.removeHandler(path)
		return fmt.Errorf("bluez: start notify on %s: %w", ancs.CharacteristicName(char), err)
	}
	logger.Debug(logPrefix, "notifications enabled on %s (%s)", ancs.CharacteristicName(char), path)
	return nil
}

// Unsubscribe disables notifications on char
func (t *Transport) Unsubscribe(char uuid.UUID) error {
	path, ok := t.chars[char]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCharacteristicNotFound, char)
	}
	defer t.removeHandler(path)

	if err := t.conn.Object(busName, path).Call(characteristicInterface+".StopNotify", 0).Err; err != nil {
		return fmt.Errorf("bluez: stop notify on %s: %w", ancs.CharacteristicName(char), err)
	}
	return nil
}

func (t *Transport) removeHandler(path dbus.ObjectPath) {
	t.mu.Lock()
	delete(t.handlers, path)
	t.mu.Unlock()
	t.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule(path))
}

// Write performs a write-with-response. ATT errors from the Control Point
// are returned as *ancs.CommandError.
func (t *Transport) Write(char uuid.UUID, data []byte) error {
	path, ok := t.chars[char]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCharacteristicNotFound, char)
	}

	options := map[string]interface{}{"type": "request"}
	err := t.conn.Object(busName, path).Call(characteristicInterface+".WriteValue", 0, data, options).Err
	if err == nil {
		return nil
	}
	if char == ancs.ControlPointUUID && len(data) > 0 {
		if code, ok := parseATTError(err); ok {
			return fmt.Errorf("bluez: write %s: %w", ancs.CharacteristicName(char), ancs.NewCommandError(code, ancs.CommandID(data[0])))
		}
	}
	return fmt.Errorf("bluez: write %s: %w", ancs.CharacteristicName(char), err)
}

// IsConnected reads the device's Connected property. Only an explicit
// false, a vanished device object, or maxPropertyFailures consecutive read
// errors count as link loss.
func (t *Transport) IsConnected() bool {
	v, err := t.conn.Object(busName, t.device).GetProperty(deviceInterface + ".Connected")
	return t.linkState(v, err)
}

func (t *Transport) linkState(v dbus.Variant, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.propertyFailures = 0
		connected, ok := v.Value().(bool)
		return !ok || connected
	}
	if dbusErrorName(err) == unknownObject {
		logger.Info(logPrefix, "device %s is gone", t.device)
		return false
	}
	t.propertyFailures++
	if t.propertyFailures >= maxPropertyFailures {
		logger.Warn(logPrefix, "read Connected failed %d times: %v", t.propertyFailures, err)
		return false
	}
	logger.Debug(logPrefix, "read Connected: %v", err)
	return true
}

func dbusErrorName(err error) string {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name
	}
	return ""
}

// Close stops signal delivery. The shared system bus connection stays open.
func (t *Transport) Close() error {
	t.once.Do(func() {
		close(t.done)
		t.conn.RemoveSignal(t.signals)
		t.wg.Wait()
	})
	return nil
}

func (t *Transport) dispatch() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case sig, ok := <-t.signals:
			if !ok {
				return
			}
			t.handleSignal(sig)
		}
	}
}

// handleSignal delivers a characteristic Value change to its handler
func (t *Transport) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != characteristicInterface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	v, ok := changed["Value"]
	if !ok {
		return
	}
	value, ok := v.Value().([]byte)
	if !ok {
		return
	}

	t.mu.Lock()
	handler, ok := t.handlers[sig.Path]
	t.mu.Unlock()
	if ok {
		handler(value)
	}
}

var attErrorPattern = regexp.MustCompile(`(?i)ATT error: 0x([0-9a-f]{2})`)

// parseATTError extracts the ATT error code BlueZ embeds in a failed write,
// e.g. "Operation failed with ATT error: 0xa2"
func parseATTError(err error) (uint8, bool) {
	m := attErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, perr := strconv.ParseUint(m[1], 16, 8)
	if perr != nil {
		return 0, false
	}
	return uint8(code), true
}
