package config

// DefaultFile is the configuration written by the install command.
const DefaultFile = `# Line numbers are GPIO chip line offsets (BCM numbering on a Raspberry Pi).

Chip = "gpiochip0"

# A key change is reported once its line has been stable this long.
# Every new edge restarts the wait.
DebounceMs = 20

# Scheduling priority of the debounce workers, 0..24 (default 12).
# Priority = 12

# Uncomment to treat a HIGH line as pressed instead of LOW (the default, pull-up buttons).
# ActiveHigh = true

# Uncomment to read all keys once at startup instead of assuming "released".
# InitialRead = true

Broker = "tcp://127.0.0.1:1883"
ClientID = "keypad-sensor"
HeartbeatMs = 900000
HTTPAddr = ":8080"

[[Key]]
	Name = "TASK1"
	Line = 5
[[Key]]
	Name = "TASK2"
	Line = 6
[[Key]]
	Name = "TASK3"
	Line = 13
[[Key]]
	Name = "TASK4"
	Line = 19
[[Key]]
	Name = "LEFT"
	Line = 20
[[Key]]
	Name = "RIGHT"
	Line = 21
[[Key]]
	Name = "ENTER"
	Line = 16
[[Key]]
	Name = "BACK"
	Line = 26
`
