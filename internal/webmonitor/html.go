package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>CCTV Threat Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #121212; color: #eee; margin: 0; }
        .app { max-width: 820px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .banner { padding: 18px; border-radius: 6px; font-size: 22px; font-weight: bold; margin: 12px 0; }
        .banner.safe { background: #2e7d32; }
        .banner.warning { background: #ef6c00; }
        .banner.danger { background: #c62828; animation: blink 1s infinite; }
        .banner.idle { background: #616161; }
        @keyframes blink { 50% { opacity: 0.6; } }
        .grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 12px; }
        .panel { background: #1e1e1e; border-radius: 6px; padding: 12px; }
        .panel h3 { margin: 0 0 6px; font-size: 13px; color: #aaa; text-transform: uppercase; }
        .value { font-size: 18px; }
        .active { color: #ff5252; }
        .controls { display: flex; gap: 10px; align-items: center; margin-top: 16px; flex-wrap: wrap; }
        button { padding: 8px 14px; border: 0; border-radius: 4px; cursor: pointer; }
        .offline { color: #ffab40; }
        .error { color: #ff8a80; font-size: 13px; min-height: 1em; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>CCTV Threat Monitor</h1>
            <span id="connection">Connecting...</span>
        </div>

        <div class="banner idle" id="banner">SYSTEM IDLE</div>

        <div class="grid">
            <div class="panel">
                <h3>Weapon</h3>
                <div class="value" id="weapon">Safe</div>
            </div>
            <div class="panel">
                <h3>Violence</h3>
                <div class="value" id="violence">Safe</div>
            </div>
            <div class="panel">
                <h3>Crowd</h3>
                <div class="value" id="crowd">0</div>
            </div>
        </div>

        <div class="controls">
            <button id="btn-start">Start monitoring</button>
            <button id="btn-stop">Stop</button>
            <label><input type="checkbox" id="mute"> Mute alarm</label>
            <label>Volume <input type="range" id="volume" min="0" max="1" step="0.05"></label>
            <span id="alarm"></span>
        </div>
        <p class="error" id="error"></p>
        <p><img src="/api/threat/badge.png" id="badge" alt="threat badge"></p>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);

        function render(s) {
            const banner = $('banner');
            if (s.phase !== 'active') {
                banner.className = 'banner idle';
                banner.textContent = s.phase === 'booting' ? 'BOOTING DETECTION...' : 'SYSTEM IDLE';
            } else {
                banner.className = 'banner ' + s.threatLevel;
                banner.textContent = {
                    danger: 'CRITICAL THREAT DETECTED',
                    warning: 'HIGH CROWD DENSITY',
                    safe: 'AREA SECURE',
                }[s.threatLevel];
            }
            $('weapon').textContent = s.weaponStatus;
            $('weapon').className = 'value' + (s.weaponActive ? ' active' : '');
            $('violence').textContent = s.violenceStatus;
            $('violence').className = 'value' + (s.violenceActive ? ' active' : '');
            $('crowd').textContent = s.crowdCount;
            $('crowd').className = 'value' + (s.crowdAlert ? ' active' : '');
            $('connection').textContent = s.phase === 'active'
                ? (s.backendConnected ? 'Detection online' : 'Detection OFFLINE')
                : 'Not monitoring';
            $('connection').className = s.phase === 'active' && !s.backendConnected ? 'offline' : '';
            $('mute').checked = s.alarm.muted;
            if (document.activeElement !== $('volume')) {
                $('volume').value = s.alarm.volume;
            }
            $('alarm').textContent = s.alarm.playing ? 'ALARM SOUNDING' : '';
            $('error').textContent = s.lastError || '';
            $('badge').src = '/api/threat/badge.png?t=' + Date.now();
        }

        async function control(path, body) {
            const resp = await fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: body ? JSON.stringify(body) : null,
            });
            const payload = await resp.json();
            if (!resp.ok) {
                $('error').textContent = payload.error;
            }
        }

        $('btn-start').onclick = () => control('/api/session/start');
        $('btn-stop').onclick = () => control('/api/session/stop');
        $('mute').onchange = (e) => control('/api/alarm/mute', { muted: e.target.checked });
        $('volume').onchange = (e) => control('/api/alarm/volume', { volume: parseFloat(e.target.value) });

        const events = new EventSource('/api/state/stream');
        events.onmessage = (e) => render(JSON.parse(e.data));
        events.onerror = () => { $('connection').textContent = 'Monitor unreachable'; };
    </script>
</body>
</html>
`
